package model

import "strings"

// BuyerKind tags the two buyer variants.  Guest and member flows are
// distinguished structurally instead of by presence of optional fields.
type BuyerKind string

const (
	BuyerKindMember BuyerKind = "MEMBER"
	BuyerKindGuest  BuyerKind = "GUEST"
)

// BuyerRef is the tagged buyer reference carried by a checkout session.
// Exactly one variant is populated: MemberID for MEMBER, Email (plus an
// optional DisplayName) for GUEST.
type BuyerRef struct {
	Kind        BuyerKind // sessions.buyer_kind
	MemberID    string    // sessions.member_id (member only)
	Email       string    // sessions.guest_email (guest only)
	DisplayName string    // sessions.guest_name (guest only)
}

// NewMemberRef builds a member buyer reference.
func NewMemberRef(memberID string) BuyerRef {
	return BuyerRef{Kind: BuyerKindMember, MemberID: memberID}
}

// NewGuestRef builds a guest buyer reference.  Emails are normalised to
// lower case so that identity matching is case-insensitive.
func NewGuestRef(email, displayName string) BuyerRef {
	return BuyerRef{
		Kind:        BuyerKindGuest,
		Email:       strings.ToLower(strings.TrimSpace(email)),
		DisplayName: strings.TrimSpace(displayName),
	}
}

// Matches reports whether the supplied requester identity refers to this
// buyer: the member id for member sessions, the guest email for guest
// sessions.  An empty identity never matches.
func (b BuyerRef) Matches(identity string) bool {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return false
	}
	switch b.Kind {
	case BuyerKindMember:
		return identity == b.MemberID
	case BuyerKindGuest:
		return strings.EqualFold(identity, b.Email)
	}
	return false
}
