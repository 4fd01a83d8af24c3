// Package harness replays capture scripts through an encoding session.
//
// A capture script is a YAML description of what a screen recorder would
// feed the pipeline: full frames and generations of patches, each stamped
// with a capture time in milliseconds. Running a script records every encoder
// submission as a fingerprint, so a run can be compared against a golden file
// or checked with assertions.
//
// # Script Format
//
//	name: padding
//	description: "A three second gap is padded with the previous frame"
//	session_id: golden-session
//	session:
//	  width: 4
//	  height: 2
//	events:
//	  - frame: { at: 1000, fill: [0, 0, 0] }
//	  - generation:
//	      at: 4000
//	      patches:
//	        - { x: 0, y: 0, w: 2, h: 2, fill: [255, 0, 0] }
//	        - { x: 0, y: 0, w: 4, h: 2, image: screen.png }
//	  - generation: { at: 4040, expect: ENCODER_FAILURE }
//	assertions:
//	  - type: dups
//	    dups: [0, 63, 12, 0]
//
// Pixels come from a solid fill ([r, g, b] or [r, g, b, a]) or from an image
// file (PNG, BMP or TIFF) whose top-left w x h region is used. Image paths
// are relative to the script file.
//
// An event's expect field names the error code the event must fail with.
// Without it, any error fails the run.
//
// # Assertion Types
//
//   - submission_count: exactly count Sink.Submit calls
//   - dups: the dup count of every submission, in order
//   - frames: count output frames in total
//   - generations: count generations closed
package harness
