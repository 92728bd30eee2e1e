// Package serial keeps a connection to a serial device alive and turns its
// byte stream into messages.
//
// A Device owns one port at a time. When the port fails to open, reports a
// read error or hangs up, the Device tears the connection down and opens a
// fresh port after a fixed ReconnectInterval, forever, until Close is
// called. Every connect attempt is a new generation: data, errors and open
// results from an older generation are discarded, so nothing from a
// previous connection is delivered after a reconnect.
//
// Features:
//   - Connect/data/close notifications with any number of listeners
//   - Pluggable Parser (LineParser, IdentityParser) reset on every reconnect
//   - Send reports write failures to the caller as *WriteError
//   - Raw syscall-based Linux transport (TTY) with a self-pipe for killability
//   - Structured logging with zap and optional Prometheus metrics
//
// This package does **not** support Windows.
//
// Example usage:
//
//	cfg := serial.DefaultConfig()
//	cfg.Name = "seismometer"
//	cfg.Device = "/dev/ttyUSB0"
//	cfg.Delimiter = "\r\n"
//
//	dev, err := serial.New(cfg,
//	    serial.WithLogger(logger),
//	    serial.WithOnData(func(line []byte) {
//	        fmt.Println("Received:", string(line))
//	    }),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dev.Close(context.Background())
//
//	if err := dev.SendString("C,START\r\n"); err != nil {
//	    log.Println("Write failed:", err)
//	}
package serial
