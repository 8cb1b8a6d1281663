package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/certusage/pkg/usage"
)

const (
	certA = "arn:aws:acm:eu-west-1:589470546847:certificate/abc-123"
	certB = "arn:aws:acm:eu-west-1:589470546847:certificate/def-456"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func listenerReport(detail string) usage.Report {
	return usage.Report{
		Kind:        usage.KindELBV2,
		Resource:    "arn:aws:elasticloadbalancing:eu-west-1:589470546847:loadbalancer/app/web/1",
		Detail:      detail,
		Location:    "listener " + detail,
		Certificate: certA,
	}
}

func TestStore_RecordAndLast(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, found, err := s.Last(ctx, certA)
	require.NoError(t, err)
	assert.False(t, found)

	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	seq1, err := s.Record(ctx, Run{Certificate: certA, StartedAt: started, Reports: []usage.Report{listenerReport("l-1")}})
	require.NoError(t, err)
	seq2, err := s.Record(ctx, Run{
		Certificate: certA,
		StartedAt:   started.Add(time.Hour),
		Reports:     []usage.Report{listenerReport("l-1"), listenerReport("l-2")},
		Failed:      []usage.Kind{usage.KindCloudFront},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq1)
	assert.Equal(t, uint64(2), seq2)

	last, found, err := s.Last(ctx, certA)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, seq2, last.Sequence)
	assert.Len(t, last.Reports, 2)
	assert.Equal(t, []usage.Kind{usage.KindCloudFront}, last.Failed)
	assert.True(t, last.StartedAt.Equal(started.Add(time.Hour)))
}

func TestStore_RunsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.Record(ctx, Run{Certificate: certA})
		require.NoError(t, err)
	}

	runs, err := s.Runs(ctx, certA, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, uint64(5), runs[0].Sequence)
	assert.Equal(t, uint64(3), runs[2].Sequence)

	all, err := s.Runs(ctx, certA, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	none, err := s.Runs(ctx, certB, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_SequencesArePerCertificate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Record(ctx, Run{Certificate: certA})
	require.NoError(t, err)
	seq, err := s.Record(ctx, Run{Certificate: certB})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), seq)
}

func TestStore_RejectsEmptyCertificate(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Record(context.Background(), Run{})
	assert.ErrorIs(t, err, ErrEmptyCertificate)
}

func TestStore_CanceledContext(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Record(ctx, Run{Certificate: certA})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = s.Runs(ctx, certA, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStore_IndexRebuiltOnOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.Record(ctx, Run{Certificate: certB, Reports: []usage.Report{listenerReport("l-1")}})
	require.NoError(t, err)
	_, err = s.Record(ctx, Run{Certificate: certA})
	require.NoError(t, err)
	_, err = s.Record(ctx, Run{Certificate: certA, Reports: []usage.Report{listenerReport("l-1"), listenerReport("l-2")}})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	states := reopened.Certificates()
	require.Len(t, states, 2)
	assert.Equal(t, certA, states[0].Certificate)
	assert.Equal(t, 2, states[0].Runs)
	assert.Equal(t, uint64(2), states[0].LastSequence)
	assert.Equal(t, 2, states[0].LastReports)
	assert.Equal(t, certB, states[1].Certificate)
	assert.Equal(t, 1, states[1].Runs)
}

func TestDiff(t *testing.T) {
	l1, l2, l3 := listenerReport("l-1"), listenerReport("l-2"), listenerReport("l-3")

	tests := []struct {
		name     string
		previous []usage.Report
		current  []usage.Report
		want     []Change
	}{
		{
			name:    "no previous run",
			current: []usage.Report{l1},
			want:    []Change{{Type: ChangeAdded, Report: l1}},
		},
		{
			name:     "unchanged",
			previous: []usage.Report{l1, l2},
			current:  []usage.Report{l2, l1},
			want:     []Change{},
		},
		{
			name:     "added and removed",
			previous: []usage.Report{l1, l2},
			current:  []usage.Report{l2, l3},
			want: []Change{
				{Type: ChangeRemoved, Report: l1},
				{Type: ChangeAdded, Report: l3},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Diff(tt.previous, tt.current))
		})
	}
}

func TestReportKey_IgnoresLocation(t *testing.T) {
	a := listenerReport("l-1")
	b := a
	b.Location = "renamed"

	assert.Equal(t, ReportKey(a), ReportKey(b))
}
