package commands

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/rbkit/pkg/msgcache"
	"github.com/Sumatoshi-tech/rbkit/pkg/observability"
	"github.com/Sumatoshi-tech/rbkit/pkg/safeconv"
)

const (
	opCacheGet = "cache.get"
	opCacheAdd = "cache.add"

	simEpochUnix = 1_700_000_000
	percent      = 100
)

// ErrInvalidSimulation is returned for unusable simulation parameters.
var ErrInvalidSimulation = errors.New("invalid simulation parameters")

// CacheSimCommand holds the flags and dependencies of the cachesim command.
type CacheSimCommand struct {
	peers        int
	messages     int
	retransmit   float64
	responseSize int
	step         time.Duration
	seed         uint64

	obsInit obsInitFunc
}

// simReport summarizes one simulation run.
type simReport struct {
	Messages    int
	Retransmits int
	Answered    int // Retransmits served from the cache.
	Stored      int
	TooLarge    int
	SimTime     time.Duration
	Stats       msgcache.Stats
}

// NewCacheSimCommand creates the cachesim command.
func NewCacheSimCommand() *cobra.Command {
	return newCacheSimCommandWithDeps(observability.Init)
}

func newCacheSimCommandWithDeps(obsInit obsInitFunc) *cobra.Command {
	cs := &CacheSimCommand{obsInit: obsInit}

	cmd := &cobra.Command{
		Use:   "cachesim",
		Short: "Simulate peers retransmitting messages against the response cache",
		Long: `Simulate peers sending confirmable messages to a server that caches its
responses. A share of the messages are retransmissions that should be answered
from the cache. Capacity and lifetime come from the cache section of the
configuration.`,
		Args: cobra.NoArgs,
		RunE: cs.run,
	}

	cmd.Flags().IntVar(&cs.peers, "peers", 8, "Number of simulated peers")
	cmd.Flags().IntVarP(&cs.messages, "messages", "n", 10_000, "Number of messages to send")
	cmd.Flags().Float64Var(&cs.retransmit, "retransmit", 0.2, "Probability that a message repeats the previous one of its peer")
	cmd.Flags().IntVar(&cs.responseSize, "response-size", 128, "Size of each cached response in bytes")
	cmd.Flags().DurationVar(&cs.step, "step", 50*time.Millisecond, "Simulated time between messages")
	cmd.Flags().Uint64Var(&cs.seed, "seed", 1, "Random seed")

	return cmd
}

func (cs *CacheSimCommand) validate() error {
	switch {
	case cs.peers <= 0:
		return fmt.Errorf("%w: peers must be positive", ErrInvalidSimulation)
	case cs.messages < 0:
		return fmt.Errorf("%w: messages must not be negative", ErrInvalidSimulation)
	case cs.retransmit < 0 || cs.retransmit > 1:
		return fmt.Errorf("%w: retransmit must be within [0, 1]", ErrInvalidSimulation)
	case cs.responseSize < 0:
		return fmt.Errorf("%w: response size must not be negative", ErrInvalidSimulation)
	case cs.step < 0:
		return fmt.Errorf("%w: step must not be negative", ErrInvalidSimulation)
	}

	return nil
}

func (cs *CacheSimCommand) run(cmd *cobra.Command, _ []string) error {
	err := cs.validate()
	if err != nil {
		return err
	}

	env, err := loadRuntime(cmd, observability.ModeCacheSim, cs.obsInit)
	if err != nil {
		return err
	}

	defer func() { _ = env.providers.Shutdown(context.WithoutCancel(cmd.Context())) }()

	clock := time.Unix(simEpochUnix, 0)

	opts, err := env.cfg.Cache.Options()
	if err != nil {
		return err
	}

	cache := msgcache.New(append(opts, msgcache.WithClock(func() time.Time { return clock }))...)
	defer func() { _ = cache.Close() }()

	ops, err := observability.NewOpMetrics(env.providers.Meter)
	if err != nil {
		return err
	}

	err = observability.RegisterCacheMetrics(env.providers.Meter, map[string]observability.CacheStatsProvider{
		"responses": cache,
	})
	if err != nil {
		return err
	}

	err = observability.RegisterTreeMetrics(env.providers.Meter, map[string]observability.TreeStatsFunc{
		"responses": cache.TreeStats,
	})
	if err != nil {
		return err
	}

	ctx, span := env.providers.Tracer.Start(cmd.Context(), "rbkit.cachesim", trace.WithAttributes(
		attribute.Int("sim.peers", cs.peers),
		attribute.Int("sim.messages", cs.messages),
	))
	defer span.End()

	logger := env.providers.Logger
	logger.InfoContext(ctx, "simulation started",
		"peers", cs.peers,
		"messages", cs.messages,
		"lifetime", cache.Lifetime(),
	)

	peers, err := cs.newPeers()
	if err != nil {
		return err
	}

	report := cs.simulate(ctx, cache, ops, peers, func() { clock = clock.Add(cs.step) })
	report.Stats = cache.Stats()

	logger.InfoContext(ctx, "simulation finished",
		"answered_from_cache", report.Answered,
		"hit_rate", report.Stats.HitRate(),
		"evictions", report.Stats.Evictions,
	)

	if !isQuiet(cmd) {
		renderSimReport(cmd.OutOrStdout(), report)
	}

	return nil
}

type simPeer struct {
	endpoint string
	nextID   uint16
	lastID   uint16
	sent     bool
}

// newPeers derives peer identities from the seed so runs are reproducible.
func (cs *CacheSimCommand) newPeers() ([]*simPeer, error) {
	var seed [32]byte

	binary.LittleEndian.PutUint64(seed[:], cs.seed)
	src := rand.NewChaCha8(seed)

	peers := make([]*simPeer, cs.peers)

	for idx := range peers {
		id, err := uuid.NewRandomFromReader(src)
		if err != nil {
			return nil, fmt.Errorf("generate peer id: %w", err)
		}

		peers[idx] = &simPeer{endpoint: id.String(), nextID: uint16(src.Uint64())} //nolint:gosec // random start id.
	}

	return peers, nil
}

// simulate replays the message stream. Each message is looked up first; a hit
// means the response is resent from the cache, a miss stores a fresh response.
func (cs *CacheSimCommand) simulate(
	ctx context.Context, cache *msgcache.Cache, ops *observability.OpMetrics, peers []*simPeer, tick func(),
) simReport {
	report := simReport{}
	rng := rand.New(rand.NewPCG(cs.seed, cs.seed^0x9e3779b97f4a7c15)) //nolint:gosec,mnd // reproducible runs.
	response := make([]byte, cs.responseSize)

	for range cs.messages {
		tick()
		report.SimTime += cs.step
		report.Messages++

		peer := peers[rng.IntN(len(peers))]

		id := peer.nextID
		if peer.sent && rng.Float64() < cs.retransmit {
			id = peer.lastID
			report.Retransmits++
		} else {
			peer.nextID++
		}

		peer.lastID = id
		peer.sent = true

		start := time.Now()
		_, hit := cache.Get(peer.endpoint, id)
		ops.RecordOp(ctx, opCacheGet, observability.StatusOK, time.Since(start))

		if hit {
			report.Answered++

			continue
		}

		start = time.Now()
		addErr := cache.Add(peer.endpoint, id, response)

		status := observability.StatusOK

		switch {
		case addErr == nil:
			report.Stored++
		case errors.Is(addErr, msgcache.ErrTooLarge):
			report.TooLarge++
			status = observability.StatusError
		default:
			status = observability.StatusError
		}

		ops.RecordOp(ctx, opCacheAdd, status, time.Since(start))
	}

	return report
}

func renderSimReport(out io.Writer, report simReport) {
	st := report.Stats

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Metric", "Value"})
	tbl.AppendRows([]table.Row{
		{"Messages", humanize.Comma(int64(report.Messages))},
		{"Retransmissions", humanize.Comma(int64(report.Retransmits))},
		{"Answered from cache", humanize.Comma(int64(report.Answered))},
		{"Responses stored", humanize.Comma(int64(report.Stored))},
		{"Rejected (too large)", humanize.Comma(int64(report.TooLarge))},
		{"Hit rate", fmt.Sprintf("%.1f%%", st.HitRate()*percent)},
		{"Evictions", humanize.Comma(st.Evictions)},
		{"Expired", humanize.Comma(st.Expired)},
		{"Entries", humanize.Comma(int64(st.Entries))},
		{"Cached", humanize.IBytes(safeconv.MustInt64ToUint64(st.Bytes)) + " / " + humanize.IBytes(safeconv.MustInt64ToUint64(st.MaxBytes))},
		{"Simulated time", report.SimTime},
	})

	_, _ = fmt.Fprintln(out, tbl.Render())
}
