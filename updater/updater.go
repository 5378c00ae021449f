// Package updater pushes images to the update endpoint a device (or
// its programmer bridge) serves on the local network.
package updater

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
)

// ErrUpdateHandlerNotImplemented means the target answered with its
// web interface instead of an update handler: it is reachable, but too
// old to accept updates over HTTP.
var ErrUpdateHandlerNotImplemented = errors.New("update handler not implemented")

type countingWriter int64

func (cw *countingWriter) Write(p []byte) (n int, err error) {
	*cw += countingWriter(len(p))
	return len(p), nil
}

// Target is one device's update endpoint, with the feature set it
// advertised at probe time.
type Target struct {
	BaseURL    string
	HTTPClient *http.Client

	// Compress requests zstd transport compression. It only takes
	// effect when the target advertises the zstd feature.
	Compress bool

	supports []string
}

// NewTarget probes the update endpoint below baseURL (which must end
// in a slash) for its supported features.
func NewTarget(baseURL string, httpClient *http.Client) (*Target, error) {
	supports, err := targetSupports(baseURL, httpClient)
	if err != nil {
		return nil, err
	}
	return &Target{
		BaseURL:    baseURL,
		HTTPClient: httpClient,
		supports:   supports,
	}, nil
}

// Supports reports whether the target advertised the named feature.
func (t *Target) Supports(feature string) bool {
	for _, f := range t.supports {
		if f == feature {
			return true
		}
	}
	return false
}

// hashScheme picks the strongest checksum both sides understand:
// blake2b-256 where advertised, the original crc32 scheme behind the
// updatehash feature, sha256 for targets that advertise nothing.
func (t *Target) hashScheme() (string, hash.Hash, error) {
	switch {
	case t.Supports("blake2b"):
		h, err := blake2b.New256(nil)
		if err != nil {
			return "", nil, err
		}
		return "blake2b", h, nil
	case t.Supports("updatehash"):
		return "crc32", crc32.NewIEEE(), nil
	}
	return "sha256", sha256.New(), nil
}

// StreamTo uploads r to the update handler named by suffix (currently
// always "romfs") and verifies the checksum the device computed over
// what it received.
func (t *Target) StreamTo(suffix string, r io.Reader) error {
	start := time.Now()
	scheme, h, err := t.hashScheme()
	if err != nil {
		return err
	}
	// The checksum covers the uncompressed stream: it proves what the
	// device will flash, not what traveled the wire.
	rd := io.Reader(io.TeeReader(r, h))
	useZstd := t.Compress && t.Supports("zstd")
	if useZstd {
		logrus.Debugf("compressing with zstd")
		src := rd
		piper, pipew := io.Pipe()
		wr, err := zstd.NewWriter(pipew, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			return err
		}
		go func() {
			if _, err := io.Copy(wr, src); err != nil {
				pipew.CloseWithError(err)
				return
			}
			if err := wr.Close(); err != nil {
				pipew.CloseWithError(err)
				return
			}
			pipew.Close()
		}()
		rd = piper
	}
	var cw countingWriter
	req, err := http.NewRequest(
		http.MethodPut,
		t.BaseURL+"update/"+suffix,
		io.TeeReader(rd, &cw))
	if err != nil {
		return err
	}
	if scheme != "sha256" {
		req.Header.Set("X-NeoROMFS-Update-Hash", scheme)
	}
	if useZstd {
		req.Header.Set("Content-Encoding", "zstd")
	}
	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if got, want := resp.StatusCode, http.StatusOK; got != want {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected HTTP status code: got %d, want %d (body %q)", got, want, string(body))
	}
	remoteHash, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if bytes.HasPrefix(remoteHash, []byte("<!DOCTYPE html>")) {
		return ErrUpdateHandlerNotImplemented
	}
	decoded := make([]byte, hex.DecodedLen(len(remoteHash)))
	n, err := hex.Decode(decoded, remoteHash)
	if err != nil {
		return err
	}
	if got, want := decoded[:n], h.Sum(nil); !bytes.Equal(got, want) {
		return fmt.Errorf("unexpected checksum: got %x, want %x", got, want)
	}
	duration := time.Since(start)
	logrus.Infof("%d bytes in %v, i.e. %f MiB/s", int64(cw), duration, float64(cw)/duration.Seconds()/1024/1024)
	return nil
}

// Reboot asks the device to reboot into the freshly written image.
func (t *Target) Reboot() error {
	resp, err := t.HTTPClient.Post(t.BaseURL+"reboot", "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if got, want := resp.StatusCode, http.StatusOK; got != want {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected HTTP status code: got %d, want %d (body %q)", got, want, string(body))
	}
	return nil
}

func targetSupports(baseURL string, client *http.Client) ([]string, error) {
	resp, err := client.Get(baseURL + "update/features")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		// Target device does not support the features handler yet, so
		// no features are supported.
		return nil, nil
	}
	if got, want := resp.StatusCode, http.StatusOK; got != want {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected HTTP status code: got %d, want %d (body %q)", got, want, string(body))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return strings.Split(strings.TrimSpace(string(body)), ","), nil
}
