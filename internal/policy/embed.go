package policy

import (
	_ "embed"
)

// builtinProfiles is the YAML source of the built-in profiles. Overrides are
// layered on top at resolve time; the embedded file itself never changes at
// runtime.
//
//go:embed profiles.yaml
var builtinProfiles []byte
