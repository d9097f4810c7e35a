package models

import "testing"

func TestPresentationState_ActiveCheckpoint(t *testing.T) {
	tests := []struct {
		name        string
		current     int
		checkpoints []int
		want        int
	}{
		{"no checkpoints", 3, nil, -1},
		{"first checkpoint ahead", 0, []int{3, 8}, 3},
		{"at the checkpoint releases it", 3, []int{3, 8}, 8},
		{"between checkpoints", 5, []int{3, 8}, 8},
		{"past all checkpoints", 9, []int{3, 8}, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &PresentationState{
				CurrentSlideIndex: tt.current,
				Checkpoints:       tt.checkpoints,
			}
			if got := state.ActiveCheckpoint(); got != tt.want {
				t.Errorf("ActiveCheckpoint() = %d, want %d", got, tt.want)
			}
		})
	}
}
