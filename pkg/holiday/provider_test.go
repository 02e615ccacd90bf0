package holiday

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAdd_OfficeEntryWinsOverNational(t *testing.T) {
	set := make(Set)
	d := Date(2025, time.May, 15)

	set.Add(Holiday{Scope: "madrid", Date: d})
	set.Add(Holiday{Scope: ScopeNational, Date: d, IsNational: true})

	require.True(t, set.Contains(d))
	assert.Equal(t, "madrid", set[d.Format(DateKey)].Scope)
}

func TestRuleTableProvider_ScopeUnion(t *testing.T) {
	p, err := NewRuleTableProvider(RuleTable{
		National: []string{"2025-01-01", "2025-12-25", "2024-01-01"},
		Offices: map[string][]string{
			"madrid": {"2025-05-15"},
		},
	})
	require.NoError(t, err)

	set, err := p.Holidays(context.Background(), "madrid", 2025)
	require.NoError(t, err)
	assert.Len(t, set, 3)
	assert.True(t, set.Contains(Date(2025, time.January, 1)))
	assert.True(t, set.Contains(Date(2025, time.May, 15)))
	assert.False(t, set.Contains(Date(2024, time.January, 1)), "other years excluded")

	national, err := p.Holidays(context.Background(), ScopeNational, 2025)
	require.NoError(t, err)
	assert.Len(t, national, 2)
	assert.False(t, national.Contains(Date(2025, time.May, 15)))
}

func TestRuleTableProvider_UnknownScopeGetsNationalOnly(t *testing.T) {
	p, err := NewRuleTableProvider(RuleTable{National: []string{"2025-01-01"}})
	require.NoError(t, err)

	set, err := p.Holidays(context.Background(), "sevilla", 2025)
	require.NoError(t, err)
	assert.Len(t, set, 1)
}

func TestRuleTableProvider_RejectsMalformedDate(t *testing.T) {
	_, err := NewRuleTableProvider(RuleTable{National: []string{"01/01/2025"}})
	require.Error(t, err)
}

func TestLoadRuleTable_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "holidays.yaml")
	content := "national:\n  - 2025-01-01\noffices:\n  barcelona:\n    - 2025-09-24\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	p, err := LoadRuleTable(path)
	require.NoError(t, err)

	set, err := p.Holidays(context.Background(), "barcelona", 2025)
	require.NoError(t, err)
	assert.True(t, set.Contains(Date(2025, time.September, 24)))
}

type countingProvider struct {
	calls int32
	fail  bool
}

func (p *countingProvider) Holidays(_ context.Context, scope string, year int) (Set, error) {
	atomic.AddInt32(&p.calls, 1)
	if p.fail {
		return nil, fmt.Errorf("%w: backend down", ErrUnavailable)
	}
	set := make(Set)
	set.Add(Holiday{Scope: scope, Date: Date(year, time.January, 1), IsNational: true})
	return set, nil
}

func TestCachedProvider_FetchesOncePerScopeYear(t *testing.T) {
	inner := &countingProvider{}
	p := NewCachedProvider(inner)

	for i := 0; i < 5; i++ {
		_, err := p.Holidays(context.Background(), "madrid", 2025)
		require.NoError(t, err)
	}
	_, err := p.Holidays(context.Background(), "madrid", 2026)
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&inner.calls))
}

func TestCachedProvider_DoesNotCacheErrors(t *testing.T) {
	inner := &countingProvider{fail: true}
	p := NewCachedProvider(inner)

	_, err := p.Holidays(context.Background(), "madrid", 2025)
	require.ErrorIs(t, err, ErrUnavailable)
	_, err = p.Holidays(context.Background(), "madrid", 2025)
	require.ErrorIs(t, err, ErrUnavailable)

	assert.Equal(t, int32(2), atomic.LoadInt32(&inner.calls))
}

func TestHTTPProvider_FetchAndUnavailable(t *testing.T) {
	var status int32 = http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s := atomic.LoadInt32(&status); s != http.StatusOK {
			w.WriteHeader(int(s))
			return
		}
		fmt.Fprint(w, `{"holidays":[{"scope":"national","date":"2025-01-01","is_national":true}]}`)
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL)
	p.maxRetries = 1

	set, err := p.Holidays(context.Background(), "madrid", 2025)
	require.NoError(t, err)
	assert.True(t, set.Contains(Date(2025, time.January, 1)))

	atomic.StoreInt32(&status, http.StatusInternalServerError)
	_, err = p.Holidays(context.Background(), "madrid", 2025)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}
