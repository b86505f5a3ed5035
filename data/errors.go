// Copyright 2021-2023
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package data

import "errors"

var (
	ErrNotFound           = errors.New("security not found")
	ErrNoFiles            = errors.New("no price files found in folder")
	ErrInvalidTimeRange   = errors.New("start must be before end")
	ErrNoProvider         = errors.New("unknown data provider")
	ErrCacheMiss          = errors.New("key not in cache")
	ErrUnexpectedResponse = errors.New("HTTP request returned invalid status code")
	ErrMissingColumn      = errors.New("required column missing")
	ErrListingUnsupported = errors.New("provider cannot list its securities")
)
