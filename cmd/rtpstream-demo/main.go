// Command rtpstream-demo sends a handful of synthetic H.264 access units
// to itself over loopback and prints what the dispatcher reassembles,
// exercising PushFrame, the receive hook and graceful shutdown end to end.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/arzzra/rtpstream/pkg/rtp"
)

func main() {
	localAddr := flag.String("listen", "127.0.0.1:0", "UDP address to bind")
	frameSize := flag.Int("frame-size", 3000, "synthetic access unit size in bytes, forces FU-A fragmentation above the MTU")
	count := flag.Int("count", 5, "number of access units to send")
	flag.Parse()

	transport, err := rtp.NewUDPTransport(rtp.TransportConfig{LocalAddr: *localAddr})
	if err != nil {
		log.Fatalf("open transport: %v", err)
	}
	defer transport.Close()

	if err := transport.SetRemoteAddr(transport.LocalAddr().String()); err != nil {
		log.Fatalf("loop back to self: %v", err)
	}

	stream, err := rtp.NewStream(transport, nil, rtp.StreamConfig{
		Format:      rtp.FormatH264,
		PayloadType: 96,
		ClockRate:   90000,
		MTU:         1200,
	})
	if err != nil {
		log.Fatalf("create stream: %v", err)
	}

	received := make(chan *rtp.Frame, *count)
	stream.InstallReceiveHook(func(f *rtp.Frame) {
		received <- f
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := stream.Start(ctx); err != nil {
		log.Fatalf("start stream: %v", err)
	}
	defer stream.Stop()

	for i := 0; i < *count; i++ {
		payload := syntheticNAL(*frameSize, i)
		if err := stream.PushFrame(payload); err != nil {
			log.Fatalf("push frame %d: %v", i, err)
		}
	}

	for i := 0; i < *count; i++ {
		select {
		case f := <-received:
			log.Printf("reassembled frame %d: %d bytes, nal type %d", i, f.PayloadLen, f.Type)
		case <-time.After(2 * time.Second):
			log.Fatalf("timed out waiting for frame %d", i)
		}
	}
}

// syntheticNAL builds a payload shaped like an H.264 IDR slice: a 1-byte
// NAL header followed by filler bytes that differ per index, so each
// access unit's contents are distinct.
func syntheticNAL(size, index int) []byte {
	const nalTypeIDR = 5
	const nri = 0x60
	buf := make([]byte, size)
	buf[0] = nri | nalTypeIDR
	for i := 1; i < size; i++ {
		buf[i] = byte(index + i)
	}
	return buf
}
