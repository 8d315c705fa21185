package commands

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/chord-frb/sifter/internal/rpc"
)

// FPGA counts per second of the L0 correlator clock.
const fpgaCountsPerSecond = 390625

type sendOptions struct {
	addr       string
	chunk      uint64
	beams      []int
	perBeam    int
	dm         float64
	snr        float64
	injections bool
	beamSetID  int
	seed       int64
	timeout    time.Duration
}

func dial(addr string) (*grpc.ClientConn, *rpc.Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return conn, rpc.NewClient(conn), nil
}

// syntheticBatch builds one chunk of events around a common pulse, with
// DM and arrival jittered per beam.
func syntheticBatch(o sendOptions) *rpc.FrbEventsMessage {
	r := rand.New(rand.NewSource(o.seed))
	msg := &rpc.FrbEventsMessage{
		HasInjections:  o.injections,
		BeamSetID:      o.beamSetID,
		ChunkFPGACount: o.chunk,
		Beams:          o.beams,
	}
	utc := time.Now().UTC()
	for _, b := range o.beams {
		for i := 0; i < o.perBeam; i++ {
			jitter := uint64(r.Intn(fpgaCountsPerSecond / 1000))
			msg.Events = append(msg.Events, rpc.FrbEvent{
				BeamID:        b,
				FPGATimestamp: o.chunk + jitter,
				TimestampUTC:  utc.UnixMicro() + int64(jitter)*1e6/fpgaCountsPerSecond,
				DM:            o.dm + r.NormFloat64(),
				DMError:       0.5,
				SNR:           o.snr + r.Float64(),
				RFIGrade:      10,
				RFIProb:       0.1,
			})
		}
	}
	return msg
}

func newSendCmd() *cobra.Command {
	o := sendOptions{}
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one synthetic chunk of events to a sifter",
		Long: `Send one synthetic chunk of events, as an L1 search node would.

Every listed beam reports the chunk; --per-beam events are generated around a
common DM so that the sifter groups them together.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, client, err := dial(o.addr)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
			defer cancel()
			msg := syntheticBatch(o)
			reply, err := client.FrbEvents(ctx, msg)
			if err != nil {
				return err
			}
			if !reply.OK {
				return fmt.Errorf("sifter rejected batch: %s", reply.Message)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %d events in %d beams: %s\n", len(msg.Events), len(o.beams), reply.Message)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.addr, "addr", "localhost:50051", "Sifter gRPC address")
	f.Uint64Var(&o.chunk, "chunk", 10*fpgaCountsPerSecond, "Chunk FPGA count")
	f.IntSliceVar(&o.beams, "beams", []int{0, 1, 2}, "Beams reporting the chunk")
	f.IntVar(&o.perBeam, "per-beam", 1, "Events per beam")
	f.Float64Var(&o.dm, "dm", 100, "Centre DM of the synthetic pulse")
	f.Float64Var(&o.snr, "snr", 8, "Base SNR")
	f.BoolVar(&o.injections, "injections", false, "Mark the batch as carrying injections")
	f.IntVar(&o.beamSetID, "beam-set", 1, "Beam set id")
	f.Int64Var(&o.seed, "seed", time.Now().UnixNano(), "Random seed")
	f.DurationVar(&o.timeout, "timeout", 10*time.Second, "Call timeout")
	return cmd
}

func newCheckConfigCmd() *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "check-config FILE",
		Short: "Ask a sifter whether a node configuration matches its reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			conn, client, err := dial(addr)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			reply, err := client.CheckConfiguration(ctx, string(doc))
			if err != nil {
				return err
			}
			if !reply.OK {
				return fmt.Errorf("configuration rejected: %s", reply.Message)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration accepted")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:50051", "Sifter gRPC address")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Call timeout")
	return cmd
}
