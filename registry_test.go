// Copyright (c) 2014-2015 The Notify Authors. All rights reserved.
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package fam

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryGenerations(t *testing.T) {
	r := newRegistry(1)
	a := r.add(4, File, "/tmp/a", 0, "")
	require.True(t, r.valid(a))

	r.del(a)
	assert.False(t, r.valid(a))

	// The daemon reuses number 4 for an unrelated request.
	b := r.add(4, Directory, "/tmp/b", 0, "")
	assert.True(t, r.valid(b))
	assert.False(t, r.valid(a), "stale handle must not alias the reused number")
	assert.NotEqual(t, a.gen, b.gen)

	// Deleting through the stale handle must not remove the new request.
	r.del(a)
	assert.True(t, r.valid(b))
	assert.Equal(t, 1, r.len())
}

func TestRegistryForeignSession(t *testing.T) {
	r1, r2 := newRegistry(1), newRegistry(2)
	a := r1.add(1, File, "/etc/hosts", 0, "")
	b := r2.add(1, File, "/etc/hosts", 0, "")
	assert.False(t, r2.valid(a))
	assert.False(t, r1.valid(b))
	r2.del(a)
	assert.True(t, r2.valid(b))
	assert.False(t, r1.valid(nil))
}

func TestRegistryList(t *testing.T) {
	r := newRegistry(1)
	r.add(3, File, "/c", 0, "")
	r.add(1, Collection, "/a", 2, "*.go")
	r.add(2, Directory, "/b", 0, "")
	var nums []int
	for _, req := range r.list() {
		nums = append(nums, req.Num())
	}
	assert.Equal(t, []int{1, 2, 3}, nums)
	req, ok := r.lookup(1)
	require.True(t, ok)
	assert.Equal(t, `collection "/a" depth=2 mask="*.go" (1)`, req.String())

	r.clear()
	assert.Zero(t, r.len())
}

func TestKindText(t *testing.T) {
	for _, k := range []Kind{File, Directory, Collection} {
		p, err := k.MarshalText()
		require.NoError(t, err)
		var got Kind
		require.NoError(t, got.UnmarshalText(p))
		assert.Equal(t, k, got)
	}
	_, err := Kind(0).MarshalText()
	assert.Error(t, err)
	var k Kind
	assert.Error(t, k.UnmarshalText([]byte("socket")))
}
