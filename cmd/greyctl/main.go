// Command greyctl is a small operator CLI for greyd's admin surface. It
// talks to internal/adminrpc over plain-JSON gRPC, the same service the
// admin HTTP endpoints expose in human form.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/ocx/greyd/internal/adminrpc"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	addr := os.Getenv("GREYD_ADMIN_RPC_ADDR")
	if addr == "" {
		addr = "localhost:9090"
	}

	switch os.Args[1] {
	case "ring":
		cmdRingStats(addr)
	case "peer":
		cmdPeerStatus(addr)
	case "rotate":
		cmdRotate(addr)
	case "version":
		fmt.Printf("greyctl v%s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`greyd admin CLI v` + version + `

Usage: greyctl <command>

Commands:
  ring      Show Bloom ring size, active filter, and fill ratios
  peer      Show peer replication link status
  rotate    Force the ring to rotate its active filter
  version   Print version
  help      Show this help

Environment:
  GREYD_ADMIN_RPC_ADDR   Admin gRPC address (default: localhost:9090)`)
}

func dial(addr string) (*grpc.ClientConn, error) {
	return grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype("json")),
	)
}

func printJSON(v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "encode response:", err)
		os.Exit(1)
	}
	fmt.Println(string(b))
}

func cmdRingStats(addr string) {
	conn, err := dial(addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "dial:", err)
		os.Exit(1)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp := new(adminrpc.RingStatsResponse)
	if err := conn.Invoke(ctx, "/greyd.admin.AdminService/RingStats", new(adminrpc.RingStatsRequest), resp); err != nil {
		fmt.Fprintln(os.Stderr, "ring stats:", err)
		os.Exit(1)
	}
	printJSON(resp)
}

func cmdPeerStatus(addr string) {
	conn, err := dial(addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "dial:", err)
		os.Exit(1)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp := new(adminrpc.PeerStatusResponse)
	if err := conn.Invoke(ctx, "/greyd.admin.AdminService/PeerStatus", new(adminrpc.PeerStatusRequest), resp); err != nil {
		fmt.Fprintln(os.Stderr, "peer status:", err)
		os.Exit(1)
	}
	printJSON(resp)
}

func cmdRotate(addr string) {
	conn, err := dial(addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "dial:", err)
		os.Exit(1)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp := new(adminrpc.RotateResponse)
	if err := conn.Invoke(ctx, "/greyd.admin.AdminService/Rotate", new(adminrpc.RotateRequest), resp); err != nil {
		fmt.Fprintln(os.Stderr, "rotate:", err)
		os.Exit(1)
	}
	printJSON(resp)
}
