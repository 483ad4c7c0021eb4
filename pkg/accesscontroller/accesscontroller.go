// Package accesscontroller defines the append predicate consulted before an
// entry enters the log. Policy lives behind this one-operation capability;
// the log core never interprets it.
package accesscontroller

import (
	"github.com/Mindburn-Labs/oplog/pkg/entry"
	"github.com/Mindburn-Labs/oplog/pkg/identity"
)

// Interface is the append predicate.
type Interface interface {
	CanAppend(e *entry.Entry, p identity.Provider) bool
}

// Default permits every entry.
type Default struct{}

func (Default) CanAppend(*entry.Entry, identity.Provider) bool { return true }

// Func adapts a plain function to the predicate interface.
type Func func(e *entry.Entry, p identity.Provider) bool

func (f Func) CanAppend(e *entry.Entry, p identity.Provider) bool { return f(e, p) }
