// Package httpclient constructs the http.Client the tools use to talk
// to a device's update endpoint.
package httpclient

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/neoromfs/tools/config"
	"github.com/neoromfs/tools/deviceflag"
	"github.com/sirupsen/logrus"
)

// ForTLSFlag returns a client trusting the certificates the --tls mode
// calls for, and reports whether a device-specific certificate was
// picked up.
func ForTLSFlag(tlsFlag string, tlsInsecure bool, baseURL *url.URL) (*http.Client, bool, error) {
	rootCAs, err := x509.SystemCertPool()
	if err != nil {
		logrus.Warnf("initializing x509 system cert pool failed (%v), falling back to empty cert pool", err)
	}
	if rootCAs == nil {
		rootCAs = x509.NewCertPool()
	}

	if tlsFlag == "off" {
		return tlsHTTPClient(rootCAs, tlsInsecure), false, nil
	}

	foundMatchingCertificate := false
	// Append user specified certificate(s)
	if tlsFlag != "self-signed" && tlsFlag != "" {
		usrCert := strings.Split(tlsFlag, ",")[0]
		certBytes, err := os.ReadFile(usrCert)
		if err != nil {
			return nil, false, fmt.Errorf("reading user specified certificate %s: %v", usrCert, err)
		}
		rootCAs.AppendCertsFromPEM(certBytes)
	} else {
		// Try to find a certificate in the local device config
		deviceConfig := config.DeviceSpecific(baseURL.Hostname())
		certPath := filepath.Join(string(deviceConfig), "cert.pem")
		if _, err := os.Stat(certPath); !os.IsNotExist(err) {
			foundMatchingCertificate = true
			logrus.Debugf("using certificate %s", certPath)
			certBytes, err := os.ReadFile(certPath)
			if err != nil {
				return nil, false, fmt.Errorf("reading certificate %s: %v", certPath, err)
			}
			rootCAs.AppendCertsFromPEM(certBytes)
		}
	}

	return tlsHTTPClient(rootCAs, tlsInsecure), foundMatchingCertificate, nil
}

func tlsHTTPClient(trustStore *x509.CertPool, tlsInsecure bool) *http.Client {
	httpTransport := http.DefaultTransport.(*http.Transport).Clone()
	httpTransport.TLSClientConfig = &tls.Config{
		RootCAs:            trustStore,
		InsecureSkipVerify: tlsInsecure,
	}

	return &http.Client{
		Transport: httpTransport,
		CheckRedirect: func(r *http.Request, via []*http.Request) error {
			if len(via) == 0 {
				return nil
			}

			last := via[len(via)-1]
			if last.URL.Host != r.URL.Host {
				// Do not send credentials to other targets
				return nil
			}
			if u := last.URL.User; u != nil {
				if pass, ok := u.Password(); ok {
					// Carry over basic authentication across redirects:
					r.SetBasicAuth(u.Username(), pass)
				}
			}
			return nil
		},
	}
}

// ForDevice resolves a device name into the client and base URL for
// its update endpoint, using the --update target and the device's
// configuration directory (http-password.txt, http-port.txt,
// cert.pem).
func ForDevice(device string) (*http.Client, *url.URL, error) {
	pw, updateHost := deviceflag.UpdateTarget(device)
	if pw == "" {
		var err error
		pw, err = config.DeviceSpecific(updateHost).ReadFile("http-password.txt")
		if err != nil {
			return nil, nil, err
		}
	}

	port, err := config.DeviceSpecific(updateHost).ReadFile("http-port.txt")
	if err != nil && !os.IsNotExist(err) {
		return nil, nil, err
	}

	cert, err := config.DeviceSpecific(updateHost).ReadFile("cert.pem")
	if err != nil && !os.IsNotExist(err) {
		return nil, nil, err
	}

	tlsFlag := deviceflag.UseTLS()
	scheme := "http"
	if cert != "" {
		tlsFlag = "self-signed"
		scheme = "https"
	}

	if port == "" {
		if scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}

	baseURL, err := deviceflag.BaseURL(port, port, scheme, updateHost, pw)
	if err != nil {
		return nil, nil, err
	}

	httpClient, _, err := ForTLSFlag(tlsFlag, false, baseURL)
	if err != nil {
		return nil, nil, err
	}

	return httpClient, baseURL, nil
}
