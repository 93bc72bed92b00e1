// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"regexp"
)

var (
	placeholderRE       = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)
	quotedPlaceholderRE = regexp.MustCompile(`"(\{\{\s*[A-Za-z0-9_]+\s*\}\})"`)
)

// substitute replaces every `{{ name }}` placeholder in raw TOML source text
// with the TOML literal form of vars[name]. A quoted placeholder
// (`"{{ name }}"`) has its surrounding quotes stripped first, so the
// substituted literal decides the resulting field's TOML type rather than
// being forced into a string — a placeholder standing in for a quoted
// scalar can turn a string-shaped TOML field into a number or bool once
// parsed.
func substitute(raw string, vars Variables) (string, error) {
	raw = quotedPlaceholderRE.ReplaceAllString(raw, "$1")

	var missing error
	out := placeholderRE.ReplaceAllStringFunc(raw, func(match string) string {
		name := placeholderRE.FindStringSubmatch(match)[1]
		val, ok := vars[name]
		if !ok {
			missing = fmt.Errorf("variable %q is not defined", name)
			return match
		}
		return tomlLiteral(val)
	})
	if missing != nil {
		return "", missing
	}
	return out, nil
}

// tomlLiteral renders v as it would appear as a TOML scalar literal. A
// string value is substituted verbatim, not re-escaped: its own text is
// expected to already be the literal the author wants in the file, quotes
// included (a variable bound to `"v2"` stands in for the quoted string v2).
func tomlLiteral(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", t)
	}
}
