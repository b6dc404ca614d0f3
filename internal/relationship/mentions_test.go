package relationship

import (
	"reflect"
	"testing"
)

func TestMentionedPeople(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"my mom is visiting", []string{"mom"}},
		{"My best friend Sam moved away", []string{"Sam"}},
		{"my boss and my boss again", []string{"boss"}},
		{"my sister is fine, my brother is not", []string{"sister", "brother"}},
		{"my friendship bracelet broke", nil},
		{"nothing about anyone", nil},
	}
	for _, tt := range tests {
		if got := MentionedPeople(tt.text); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("MentionedPeople(%q): expected %v, got %v", tt.text, tt.want, got)
		}
	}
}

func TestMentionDelta(t *testing.T) {
	if d := MentionDelta(0.8); d.WarmthChange <= 0 || d.FamiliarityChange <= 0 {
		t.Errorf("expected warmer delta, got %+v", d)
	}
	if d := MentionDelta(-0.8); d.WarmthChange >= 0 {
		t.Errorf("expected cooler delta, got %+v", d)
	}
	if d := MentionDelta(0); d.WarmthChange != 0 || d.TrustChange != 0 {
		t.Errorf("expected neutral delta, got %+v", d)
	}
}
