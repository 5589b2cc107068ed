package progress

import "testing"

func TestInferStep(t *testing.T) {
	tests := []struct {
		input       string
		wantStep    int
		wantAllDone bool
	}{
		// Step guidance head
		{"Step 1: Fill a large pot with water.", 1, false},
		{"Step 3: Add the pasta to the boiling water.", 3, false},
		{"step 12: rest the dough.", 12, false},

		// Movement phrasing
		{"Great! Let's begin cooking. Say 'start' to begin with step 1.", 1, false},
		{"Nice work. Moving on to step 4.", 4, false},
		{"Let's move to step 2 now.", 2, false},
		{"We can continue with step 5 while that simmers.", 5, false},

		// Closing line
		{"Congratulations! You've completed all the steps. Enjoy!", 0, true},
		{"You have completed all steps of the recipe.", 0, true},

		// Nothing to infer
		{"Would you like me to start a timer?", 0, false},
		{"You'll need 2 cups of flour for this.", 0, false},
		{"This step takes 5 minutes.", 0, false},
		{"", 0, false},

		// Step mentioned mid-sentence without guidance phrasing is ignored
		{"Remember the tip from step 2 about salting the water.", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			hint := InferStep(tt.input)
			if hint.Step != tt.wantStep {
				t.Errorf("input=%q: got step %d, want %d", tt.input, hint.Step, tt.wantStep)
			}
			if hint.AllDone != tt.wantAllDone {
				t.Errorf("input=%q: got allDone=%v, want %v", tt.input, hint.AllDone, tt.wantAllDone)
			}
		})
	}
}
