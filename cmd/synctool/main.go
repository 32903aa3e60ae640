package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/chn0318/partsync/proto/syncpb"
)

func main() {
	addr := flag.String("addr", "localhost:50061", "sync node address")
	pID := flag.Uint("partition", 0, "partition to dump")
	all := flag.Bool("all", false, "dump every partition with live contexts and the statistics")
	flag.Parse()

	conn, err := grpc.Dial(*addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		log.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	client := syncpb.NewTransitClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Dump(ctx, &syncpb.DumpRequest{
		PartitionId: uint32(*pID),
		All:         *all,
	})
	if err != nil {
		log.Fatalf("dump error: %v", err)
	}
	fmt.Println(resp.Dump)
}
