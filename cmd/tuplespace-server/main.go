// tuplespace-server hosts a [netshim.Bag] over net/rpc for clients that
// cannot attach to the POSIX shared-memory region directly (the optional
// network façade described by the spec's external interfaces).
package main

import (
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/disaggr/memspace/pkg/netshim"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		listenHost string
		port       uint16
	)

	pflag.StringVar(&listenHost, "listen", "127.0.0.1", "address to listen on")
	pflag.Uint16Var(&port, "port", 9797, "TCP port to listen on")
	pflag.Parse()

	addr := net.JoinHostPort(listenHost, fmt.Sprintf("%d", port))

	bag := netshim.NewBag()

	ln, err := netshim.Serve(bag, addr)
	if err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	defer ln.Close()

	logger := log.New(os.Stdout, "tuplespace-server: ", log.LstdFlags)
	logger.Printf("listening on %s", ln.Addr())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logger.Printf("shutting down")

	return nil
}
