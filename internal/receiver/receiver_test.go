package receiver

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/segrecv/internal/core"
	"firestige.xyz/segrecv/internal/metrics"
	"firestige.xyz/segrecv/internal/output"
	"firestige.xyz/segrecv/internal/reassembly"
	"firestige.xyz/segrecv/internal/testutil"
)

// fakeSource replays datagrams from memory, then returns err (io.EOF when
// unset).
type fakeSource struct {
	datagrams [][]byte
	next      int
	err       error
}

func (f *fakeSource) Receive(ctx context.Context) (core.Datagram, error) {
	if err := ctx.Err(); err != nil {
		return core.Datagram{}, err
	}
	if f.next >= len(f.datagrams) {
		if f.err != nil {
			return core.Datagram{}, f.err
		}
		return core.Datagram{}, io.EOF
	}
	d := f.datagrams[f.next]
	f.next++
	return core.Datagram{Data: d, Timestamp: time.Now()}, nil
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Close() error { return nil }

var contents = map[uint8][]byte{
	1: []byte("first file, a little longer than one chunk"),
	2: []byte("second"),
	3: bytes.Repeat([]byte{0xab}, 100),
}

func jobDatagrams(names map[uint8]string) [][]byte {
	var all [][]byte
	for id := uint8(1); id <= 3; id++ {
		all = append(all, testutil.FileDatagrams(id, names[id], contents[id], 16)...)
	}
	return testutil.Shuffle(all, 7)
}

func newReceiver(t *testing.T, src *fakeSource, dir string, progress io.Writer) *Receiver {
	t.Helper()
	return New(Config{
		Source:      src,
		Coordinator: reassembly.NewCoordinator(3),
		Writer:      output.NewWriter(dir),
		Progress:    progress,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestRun_WritesAllFiles(t *testing.T) {
	dir := t.TempDir()
	names := map[uint8]string{1: "one.txt", 2: "two.txt", 3: "sub/three.bin"}
	datagrams := jobDatagrams(names)
	accepted := len(datagrams)

	// Undecodable datagrams are skipped.
	datagrams = append([][]byte{{1, 2, 3}, {0, 9, 0xff, 0xfe}}, datagrams...)
	src := &fakeSource{datagrams: datagrams}

	var progress bytes.Buffer
	r := newReceiver(t, src, dir, &progress)

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	require.True(t, report.OK())

	assert.Equal(t, r.JobID(), report.JobID)
	assert.Equal(t, "fake", report.Source)
	assert.Equal(t, uint64(len(datagrams)), report.Stats.Datagrams)
	assert.Equal(t, uint64(2), report.Stats.DecodeErrors)
	assert.Equal(t, uint64(accepted), report.Stats.Packets)
	assert.Equal(t, strings.Repeat(".", accepted)+"\n", progress.String())

	require.Len(t, report.Files, 3)
	for i, res := range report.Files {
		id := uint8(i + 1)
		assert.Equal(t, id, res.FileID)
		assert.Equal(t, names[id], res.FileName)
		assert.Equal(t, len(contents[id]), res.Bytes)

		got, err := os.ReadFile(filepath.Join(dir, names[id]))
		require.NoError(t, err)
		assert.Equal(t, contents[id], got)
	}
}

func TestRun_StopsReadingOnceComplete(t *testing.T) {
	datagrams := jobDatagrams(map[uint8]string{1: "a", 2: "b", 3: "c"})
	n := len(datagrams)
	datagrams = append(datagrams, testutil.FileDatagrams(4, "late", []byte("late"), 16)...)
	src := &fakeSource{datagrams: datagrams}

	_, err := newReceiver(t, src, t.TempDir(), nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, n, src.next)
}

func TestRun_SourceExhausted(t *testing.T) {
	all := jobDatagrams(map[uint8]string{1: "a", 2: "b", 3: "c"})
	// Drop file 3 entirely and one Data packet of file 1.
	var datagrams [][]byte
	droppedOne := false
	for _, d := range all {
		if d[1] == 3 {
			continue
		}
		if d[1] == 1 && d[0]%2 == 1 && d[0]%4 == 1 && !droppedOne {
			droppedOne = true
			continue
		}
		datagrams = append(datagrams, d)
	}
	require.True(t, droppedOne)

	dir := t.TempDir()
	report, err := newReceiver(t, &fakeSource{datagrams: datagrams}, dir, nil).Run(context.Background())
	require.ErrorIs(t, err, core.ErrSourceExhausted)
	assert.Contains(t, err.Error(), "2 of 3 files seen")
	assert.Contains(t, err.Error(), `file 1 "a": 2 of 3 packets, 1 missing`)
	assert.False(t, report.OK())
	assert.Empty(t, report.Files)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing is written for an incomplete job")
}

func TestRun_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newReceiver(t, &fakeSource{}, t.TempDir(), nil).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, core.ErrSourceExhausted)
}

func TestRun_SourceFailure(t *testing.T) {
	_, err := newReceiver(t, &fakeSource{err: core.ErrSourceClosed}, t.TempDir(), nil).Run(context.Background())
	assert.ErrorIs(t, err, core.ErrSourceClosed)
}

func TestRun_FailedFileDoesNotStopOthers(t *testing.T) {
	dir := t.TempDir()
	names := map[uint8]string{1: "good-1", 2: "../escape", 3: "good-3"}
	src := &fakeSource{datagrams: jobDatagrams(names)}

	report, err := newReceiver(t, src, dir, nil).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUnsafeFileName)
	assert.False(t, report.OK())

	require.Len(t, report.Failed, 1)
	assert.Equal(t, uint8(2), report.Failed[0].FileID)
	require.Len(t, report.Files, 2)
	assert.FileExists(t, filepath.Join(dir, "good-1"))
	assert.FileExists(t, filepath.Join(dir, "good-3"))
}

func TestNew_JobIDIsUUID(t *testing.T) {
	a := newReceiver(t, &fakeSource{}, t.TempDir(), nil)
	b := newReceiver(t, &fakeSource{}, t.TempDir(), nil)

	_, err := uuid.Parse(a.JobID())
	require.NoError(t, err)
	assert.NotEqual(t, a.JobID(), b.JobID())
}

func TestRun_DecodeWarningsAreRateLimited(t *testing.T) {
	var garbage [][]byte
	for i := 0; i < defaultWarnBurst+10; i++ {
		garbage = append(garbage, []byte{1})
	}
	src := &fakeSource{datagrams: append(garbage, jobDatagrams(map[uint8]string{1: "a", 2: "b", 3: "c"})...)}

	var logs bytes.Buffer
	r := New(Config{
		Source:      src,
		Coordinator: reassembly.NewCoordinator(3),
		Writer:      output.NewWriter(t.TempDir()),
		Logger:      slog.New(slog.NewTextHandler(&logs, nil)),
	})

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(defaultWarnBurst+10), report.Stats.DecodeErrors)
	assert.Equal(t, defaultWarnBurst, strings.Count(logs.String(), "discarding datagram"))
	assert.Contains(t, logs.String(), "suppressed_warnings=10")
	assert.Contains(t, logs.String(), "job_id="+r.JobID())
}

func gaugeValue(t *testing.T, name string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			require.NotEmpty(t, mf.GetMetric())
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not registered", name)
	return 0
}

func TestRun_CompleteGaugeTracksCurrentJob(t *testing.T) {
	for i := 0; i < 2; i++ {
		src := &fakeSource{datagrams: jobDatagrams(map[uint8]string{1: "a", 2: "b", 3: "c"})}
		_, err := newReceiver(t, src, t.TempDir(), nil).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, float64(3), gaugeValue(t, "segrecv_groups_complete"), "job %d", i)
	}

	metrics.GroupsComplete.Set(0)
}
