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

// Package event implements the temporal event model. Every event carries an ordered, typed payload and a
// half-open validity interval [T1, T2). Events are immutable once constructed and are shared freely between
// operators, buffers and sweep areas.
//
// A Compound is a zero-copy view over two events used while evaluating join predicates. It is only turned into
// a flat Event (materialized) once a match is confirmed.
package event
