package tlsmgr

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// ErrEncryptedKey is returned for passphrase-protected keys, which the gate
// cannot unlock unattended.
var ErrEncryptedKey = errors.New("encrypted private keys are not supported")

// LoadBundle assembles the gate's certificate from PEM files. Blocks may be
// split across files in any order. The certificate matching one of the keys
// becomes the leaf; the remaining certificates follow it as the chain.
func LoadBundle(files []string) (tls.Certificate, error) {
	var certs []*pem.Block
	var keys []*pem.Block
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return tls.Certificate{}, wrapMissing(err, "tls bundle not found")
		}
		for {
			var block *pem.Block
			block, data = pem.Decode(data)
			if block == nil {
				break
			}
			switch block.Type {
			case "CERTIFICATE":
				certs = append(certs, block)
			case "PRIVATE KEY", "RSA PRIVATE KEY", "EC PRIVATE KEY":
				if _, encrypted := block.Headers["DEK-Info"]; encrypted {
					return tls.Certificate{}, fmt.Errorf("%s: %w", file, ErrEncryptedKey)
				}
				keys = append(keys, block)
			case "ENCRYPTED PRIVATE KEY":
				return tls.Certificate{}, fmt.Errorf("%s: %w", file, ErrEncryptedKey)
			}
		}
	}
	if len(certs) == 0 {
		return tls.Certificate{}, fmt.Errorf("no certificates found in tls bundle")
	}
	if len(keys) == 0 {
		return tls.Certificate{}, fmt.Errorf("no private key found in tls bundle")
	}

	for leafIdx, leaf := range certs {
		for _, key := range keys {
			chain := pem.EncodeToMemory(leaf)
			for i, c := range certs {
				if i != leafIdx {
					chain = append(chain, pem.EncodeToMemory(c)...)
				}
			}
			cert, err := tls.X509KeyPair(chain, pem.EncodeToMemory(key))
			if err != nil {
				continue
			}
			if cert.Leaf == nil {
				if cert.Leaf, err = x509.ParseCertificate(cert.Certificate[0]); err != nil {
					return tls.Certificate{}, err
				}
			}
			return cert, nil
		}
	}
	return tls.Certificate{}, fmt.Errorf("no private key in tls bundle matches its certificates")
}
