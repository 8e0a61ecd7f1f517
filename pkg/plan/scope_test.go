package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergedPatterns(t *testing.T) {
	p := &Plan{
		AllowPatterns: []string{"src/**", "docs/*.md"},
		DenyPatterns:  []string{"vendor/**"},
	}
	step := PlanStep{
		TaskSpec: TaskSpec{
			AllowPatterns: []string{"src/auth/**", "src/**"},
			DenyPatterns:  []string{"src/auth/secrets.go"},
		},
		ID: "s1",
	}

	allow := p.MergedAllow(&step)
	assert.Equal(t, []string{"src/auth/**", "src/**", "docs/*.md"}, allow)

	deny := p.MergedDeny(&step)
	assert.Equal(t, []string{"src/auth/secrets.go", "vendor/**"}, deny)
}

func TestScopesOverlap(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want bool
	}{
		{"identical patterns", []string{"src/**"}, []string{"src/**"}, true},
		{"nested subtrees", []string{"src/auth/**"}, []string{"src/**"}, true},
		{"disjoint subtrees", []string{"src/auth/**"}, []string{"docs/**"}, false},
		{"bare wildcard matches anything", []string{"**"}, []string{"docs/**"}, true},
		{"empty scopes never overlap", nil, []string{"src/**"}, false},
		{"literal paths", []string{"src/main.go"}, []string{"src/main.go"}, true},
		{"literal inside subtree", []string{"src/auth/token.go"}, []string{"src/auth/**"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ScopesOverlap(tt.a, tt.b))
		})
	}
}
