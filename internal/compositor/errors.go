package compositor

import "github.com/roach88/framestack/internal/fragment"

// ErrGenerationNotFound is shared with the fragment store so callers can test
// either source with one errors.Is check.
var ErrGenerationNotFound = fragment.ErrGenerationNotFound
