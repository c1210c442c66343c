package authcore

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/permission"
)

func BenchmarkMetricsInc(b *testing.B) {
	for _, enabled := range []bool{true, false} {
		name := "enabled"
		if !enabled {
			name = "disabled"
		}
		b.Run(name, func(b *testing.B) {
			m := NewMetrics(MetricsConfig{Enabled: enabled})
			b.ReportAllocs()
			b.RunParallel(func(pb *testing.PB) {
				id := MetricID(0)
				for pb.Next() {
					m.Inc(id)
					if id++; id == metricIDCount {
						id = 0
					}
				}
			})
		})
	}
}

func BenchmarkMetricsObserveGuardLatency(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		d := 350 * time.Microsecond
		for pb.Next() {
			m.Observe(MetricGuardLatency, d)
		}
	})
}

// benchEnv discards audit events so a long run never fills the test channel sink.
func benchEnv(b *testing.B) *testEnv {
	return newRedisEnv(b, func(bld *Builder) { bld.WithAuditSink(NoOpSink{}) })
}

func BenchmarkAuthenticate(b *testing.B) {
	env := benchEnv(b)
	pair := env.login(b, "alice")
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := env.engine.Authenticate(ctx, pair.AccessToken); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRequireSubject(b *testing.B) {
	env := benchEnv(b)
	pair := env.login(b, "alice")
	ctx := context.Background()
	req := permission.Requirement{
		Roles:       []permission.Role{permission.RoleCreator, permission.RoleAdmin},
		Permissions: []permission.Permission{"project:create"},
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := env.engine.RequireSubject(ctx, pair.AccessToken, req); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRefresh(b *testing.B) {
	env := benchEnv(b)
	token := env.login(b, "bob").RefreshToken
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pair, err := env.engine.Refresh(ctx, token)
		if err != nil {
			b.Fatal(err)
		}
		token = pair.RefreshToken
	}
}
