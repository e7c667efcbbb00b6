/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package event

import "errors"

var (
	// ErrInvalidInterval is returned when an event would be constructed with t1 >= t2.
	ErrInvalidInterval = errors.New("invalid validity interval")
	// ErrEmptyInterval is returned when a compound event with disjoint intervals is materialized.
	ErrEmptyInterval = errors.New("empty validity interval")
	// ErrSchemaMismatch is returned when a payload does not conform to a schema.
	ErrSchemaMismatch = errors.New("schema mismatch")
)
