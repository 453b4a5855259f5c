package repostats

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hboehmer-IW/prefect/internal/engine"
	"github.com/hboehmer-IW/prefect/pkg/api"
)

func statsServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestGet_ParsesCounts(t *testing.T) {
	srv := statsServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/golang/go" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"name":"go","full_name":"golang/go","stargazers_count":120000,"forks_count":17000}`)
	})

	client := &Client{BaseURL: srv.URL}
	info, err := client.Get(context.Background(), "golang", "go")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if info.StargazersCount != 120000 {
		t.Fatalf("unexpected stargazers: %d", info.StargazersCount)
	}
	if info.ForksCount != 17000 {
		t.Fatalf("unexpected forks: %d", info.ForksCount)
	}
}

func TestGet_NonOKStatusIsError(t *testing.T) {
	srv := statsServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	})

	client := &Client{BaseURL: srv.URL}
	_, err := client.Get(context.Background(), "nobody", "nothing")
	if err == nil {
		t.Fatal("expected error for 404")
	}
}

func TestGet_RequiresOwnerAndRepo(t *testing.T) {
	client := &Client{}
	if _, err := client.Get(context.Background(), "", "repo"); err == nil {
		t.Fatal("expected error for empty owner")
	}
	if _, err := client.Get(context.Background(), "owner", ""); err == nil {
		t.Fatal("expected error for empty repo")
	}
}

func TestFlowFn_RetriesThroughEngine(t *testing.T) {
	// The server fails twice with 500, then answers. Wired into a flow with
	// three retries, the run must complete on the third attempt.
	var hits int32
	srv := statsServer(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			http.Error(w, `{"message":"upstream hiccup"}`, http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"name":"go","stargazers_count":7,"forks_count":3}`)
	})

	client := &Client{BaseURL: srv.URL}
	eng := engine.NewInMemoryEngine()

	def := api.FlowDefinition{
		Name:  "fetch-repo-stats",
		Fn:    client.FlowFn(),
		Retry: &api.RetryPolicy{Retries: 3, RetryDelay: 5 * time.Millisecond},
	}
	if err := eng.RegisterFlow(def); err != nil {
		t.Fatalf("RegisterFlow failed: %v", err)
	}

	run, err := eng.Run(context.Background(), "fetch-repo-stats", Params{Owner: "golang", Repo: "go"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if run.StateType != api.StateCompleted {
		t.Fatalf("expected COMPLETED, got %q", run.StateType)
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Fatalf("expected 3 HTTP requests, got %d", got)
	}

	info, ok := run.Output.(*RepoInfo)
	if !ok {
		t.Fatalf("unexpected output type %T", run.Output)
	}
	if info.StargazersCount != 7 || info.ForksCount != 3 {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestFlowFn_ExhaustedRetriesSurfaceHTTPError(t *testing.T) {
	srv := statsServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"down"}`, http.StatusServiceUnavailable)
	})

	client := &Client{BaseURL: srv.URL}
	eng := engine.NewInMemoryEngine()

	def := api.FlowDefinition{
		Name:  "always-down",
		Fn:    client.FlowFn(),
		Retry: &api.RetryPolicy{Retries: 2},
	}
	if err := eng.RegisterFlow(def); err != nil {
		t.Fatalf("RegisterFlow failed: %v", err)
	}

	run, err := eng.Run(context.Background(), "always-down", Params{Owner: "a", Repo: "b"})
	if err == nil {
		t.Fatal("expected run to fail")
	}
	if run.StateType != api.StateFailed {
		t.Fatalf("expected FAILED, got %q", run.StateType)
	}
	if run.RunCount != 3 {
		t.Fatalf("expected 3 attempts, got %d", run.RunCount)
	}

	if !strings.Contains(err.Error(), "503") {
		t.Fatalf("expected the HTTP status in the error, got %v", err)
	}
}
