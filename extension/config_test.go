package extension

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/famledger"
	"github.com/xraph/famledger/store/memory"
)

func TestMergeConfigurations(t *testing.T) {
	e := New()

	tests := []struct {
		name       string
		yaml, prog Config
		want       Config
	}{
		{
			name: "defaults fill zeros",
			want: DefaultConfig(),
		},
		{
			name: "yaml wins for values",
			yaml: Config{SchedulerInterval: time.Minute, ProcessConcurrency: 8},
			prog: Config{SchedulerInterval: time.Second, ProcessConcurrency: 2},
			want: Config{SchedulerInterval: time.Minute, ProcessConcurrency: 8},
		},
		{
			name: "programmatic fills gaps",
			prog: Config{ProcessConcurrency: 2},
			want: Config{SchedulerInterval: time.Hour, ProcessConcurrency: 2},
		},
		{
			name: "programmatic flags stick",
			prog: Config{DisableMigrate: true, DisableScheduler: true},
			want: Config{DisableMigrate: true, DisableScheduler: true, SchedulerInterval: time.Hour, ProcessConcurrency: 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.mergeConfigurations(tt.yaml, tt.prog); got != tt.want {
				t.Errorf("merge = %+v, want %+v", got, tt.want)
			}
		})
	}
}

type initWatcher struct{ inited bool }

func (p *initWatcher) Name() string { return "init-watcher" }

func (p *initWatcher) OnInit(context.Context, any) error {
	p.inited = true
	return nil
}

func TestBuildLedgerOpts(t *testing.T) {
	p := &initWatcher{}
	e := New(
		WithStore(memory.New()),
		WithDisableScheduler(),
		WithPlugin(p),
		WithLedgerOption(famledger.WithInterestRefresh(false)),
	)
	e.config = e.mergeWithDefaults(e.config)

	l := famledger.New(e.store, e.buildLedgerOpts()...)
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := l.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !p.inited {
		t.Error("plugin passed through WithPlugin never saw OnInit")
	}
}
