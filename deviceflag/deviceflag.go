// Package deviceflag provides the flags shared by tools that talk to a
// device: which device, where its update endpoint is and how TLS is
// handled.
package deviceflag

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/neoromfs/tools/config"
	"github.com/spf13/pflag"
)

var (
	device = os.Getenv("NEOROMFS_DEVICE")

	update string

	useTLS string
)

// RegisterPflags registers --device, --update and --tls on fs.
func RegisterPflags(fs *pflag.FlagSet) {
	fs.StringVarP(&device,
		"device",
		"d",
		device,
		`target device, identified by its profile slug, e.g. pico (defaults to $NEOROMFS_DEVICE)`)

	fs.StringVar(&update,
		"update",
		update,
		`update target: "yes" to reach the device by name, ":port" to override the port, or a full URL`)

	fs.StringVar(&useTLS,
		"tls",
		useTLS,
		`TLS mode: "off", "self-signed", or "<certfile>[,<keyfile>]"`)
}

func SetDevice(d string) { device = d }

func Device() string { return device }

func SetUpdate(u string) { update = u }

func Update() string { return update }

func SetUseTLS(t string) { useTLS = t }

func UseTLS() string { return useTLS }

// UpdateTarget returns the password and host embedded in a fully
// qualified --update URL, or the device name itself for the shorthand
// syntaxes.
func UpdateTarget(device string) (defaultPassword, updateHost string) {
	if update == "" || update == "yes" || strings.HasPrefix(update, ":") {
		return "", device
	}
	u, err := url.Parse(update)
	if err != nil {
		return "", device
	}
	defaultPassword, _ = u.User.Password()
	return defaultPassword, u.Host
}

// BaseURL returns the URL below which the device serves its update
// endpoints, expanding the "yes" and ":port" shorthands into
// schema://neoromfs:pw@host[:port]/. A fully qualified --update URL is
// returned as-is.
func BaseURL(httpPort, httpsPort, schema, host, pw string) (*url.URL, error) {
	if update != "yes" && !strings.HasPrefix(update, ":") {
		// already fully qualified, nothing to add
		return url.Parse(update)
	}
	port := httpPort
	defaultPort := "80"
	if schema == "https" {
		port = httpsPort
		defaultPort = "443"
	}
	if strings.HasPrefix(update, ":") {
		port = strings.TrimPrefix(update, ":")
	}
	base := schema + "://neoromfs:" + pw + "@" + host
	if port != defaultPort {
		base += ":" + port
	}
	base += "/"
	return url.Parse(base)
}

// ErrNotYetCreated is returned for --tls=self-signed before a
// certificate has been generated for the device.
type ErrNotYetCreated struct {
	DeviceConfigPath string
	CertPath         string
	KeyPath          string
}

func (e *ErrNotYetCreated) Error() string {
	return "self-signed certificate not yet created"
}

// CertificatePathsFor resolves the --tls mode into certificate and key
// paths for the named device. Both paths are empty when TLS is off.
func CertificatePathsFor(useTLS, device string) (certPath string, keyPath string, _ error) {
	deviceConfigPath := config.DeviceSpecific(device)
	certPath = filepath.Join(string(deviceConfigPath), "cert.pem")
	keyPath = filepath.Join(string(deviceConfigPath), "key.pem")
	exist := true
	if _, err := os.Stat(certPath); os.IsNotExist(err) {
		exist = false
	}
	if _, err := os.Stat(keyPath); os.IsNotExist(err) {
		exist = false
	}

	switch useTLS {
	case "self-signed":
		// If the user set --tls=self-signed, treat non-existing
		// certificates as an error.

		if !exist {
			return "", "", &ErrNotYetCreated{
				DeviceConfigPath: string(deviceConfigPath),
				CertPath:         certPath,
				KeyPath:          keyPath,
			}
		}

	case "off":
		// User specified --tls=off explicitly.
		return "", "", nil

	case "":
		// If the user did not set --tls, return the cert/key path
		// locations only if they exist.

		if !exist {
			return "", "", nil
		}

	default:
		parts := strings.Split(useTLS, ",")
		certPath = parts[0]
		if len(parts) > 1 {
			keyPath = parts[1]
		} else {
			return "", "", fmt.Errorf("no private key supplied")
		}
	}
	return certPath, keyPath, nil
}
