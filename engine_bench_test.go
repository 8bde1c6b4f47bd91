package sessiongate

import (
	"context"
	"testing"

	"github.com/MrEthical07/sessiongate/permission"
)

func BenchmarkAuthorize(b *testing.B) {
	engine, err := New().
		WithConfig(testConfig()).
		WithIdentityProvider(newMockIdentityProvider(mentor)).
		Build()
	if err != nil {
		b.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	token, err := engine.IssueAccessToken("mona")
	if err != nil {
		b.Fatalf("IssueAccessToken: %v", err)
	}
	required := []permission.Right{permission.GetStudents}
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := engine.Authorize(ctx, token, required, ""); err != nil {
				b.Fatalf("Authorize: %v", err)
			}
		}
	})
}
