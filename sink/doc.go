// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package sink implements the merge driver's output abstraction: a single
// add/close interface backed either by a direct writer, for
// query-name and unsorted output, or by an external sorting collection, for
// coordinate-sorted output. A coordinate sink's Close drains the sort in
// order and runs the final per-record recomputation pass before handing
// each record to the underlying writer, following extsort.Sorter's
// add-then-drain lifecycle.
package sink
