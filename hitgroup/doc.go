// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package hitgroup turns a query-name sorted stream of alignment records
// into a lazy sequence of HitsForRead groups: the primary, secondary and
// supplementary hits for each end of a read, with exactly one hit per end
// marked primary by an externally supplied selection policy.
package hitgroup
