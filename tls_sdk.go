package vakt

import (
	"context"
	"io"

	"pkt.systems/pslog"
	"pkt.systems/vakt/internal/tlsmgr"
)

// TLSNew creates a new CA and server certificate bundle.
func TLSNew(ctx context.Context, dir, hostname string, logger pslog.Logger) error {
	return tlsmgr.GenerateAll(ctx, dir, hostname, logger)
}

// TLSNewCA creates a new CA.
func TLSNewCA(ctx context.Context, dir string, logger pslog.Logger) error {
	return tlsmgr.GenerateCA(ctx, dir, logger)
}

// TLSNewServer creates a new server certificate signed by the existing CA.
func TLSNewServer(ctx context.Context, dir, hostname string, logger pslog.Logger) error {
	return tlsmgr.GenerateServerCert(ctx, dir, hostname, logger)
}

// TLSExportCA writes the CA certificate to w so clients on other hosts can
// trust the gate.
func TLSExportCA(dir string, w io.Writer) error {
	return tlsmgr.ExportCA(dir, w)
}
