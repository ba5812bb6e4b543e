// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import "github.com/z5labs/dali/config/key"

// Map is a [Source] backed by an already decoded config tree. Nested maps
// are flattened into key chains so later sources only replace the leaves
// they set.
type Map map[string]any

// Apply implements the [Source] interface.
func (m Map) Apply(store Store) error {
	return walkMap(m, store, nil)
}

func walkMap(m map[string]any, store Store, chain key.Chain) error {
	for k, v := range m {
		path := append(chain[:len(chain):len(chain)], key.Name(k))
		switch x := v.(type) {
		case map[string]any:
			err := walkMap(x, store, path)
			if err != nil {
				return err
			}
		default:
			err := store.Set(path, x)
			if err != nil {
				return err
			}
		}
	}
	return nil
}
