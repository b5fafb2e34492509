package domain

type FriendsOverview struct {
	Friends  []UserSummary `json:"friends"`
	Incoming []UserSummary `json:"incoming_requests"`
	Outgoing []UserSummary `json:"outgoing_requests"`
}

// RelationState is the relationship between two users as seen from the
// first one. It is derived from the six set memberships across both records.
type RelationState string

const (
	RelationNone            RelationState = "none"
	RelationRequestSent     RelationState = "request_sent"
	RelationRequestReceived RelationState = "request_received"
	RelationFriends         RelationState = "friends"
	// RelationInconsistent means the two records disagree, usually because
	// the second write of a transition failed.
	RelationInconsistent RelationState = "inconsistent"
)

// pairFacts holds which of the six memberships between a and b are present.
type pairFacts struct {
	aFriend, bFriend    bool // b in a.friends, a in b.friends
	aSent, bReceived    bool // b in a.sent, a in b.received
	aReceived, bSentToA bool // b in a.received, a in b.sent
}

func factsOf(a, b UserProfile) pairFacts {
	return pairFacts{
		aFriend:   a.HasFriend(b.ID),
		bFriend:   b.HasFriend(a.ID),
		aSent:     a.HasSentTo(b.ID),
		bReceived: b.HasReceivedFrom(a.ID),
		aReceived: a.HasReceivedFrom(b.ID),
		bSentToA:  b.HasSentTo(a.ID),
	}
}

func (f pairFacts) state() RelationState {
	friends := f.aFriend || f.bFriend
	outgoing := f.aSent || f.bReceived
	incoming := f.aReceived || f.bSentToA

	switch {
	case !friends && !outgoing && !incoming:
		return RelationNone
	case f.aFriend && f.bFriend && !outgoing && !incoming:
		return RelationFriends
	case f.aSent && f.bReceived && !friends && !incoming:
		return RelationRequestSent
	case f.aReceived && f.bSentToA && !friends && !outgoing:
		return RelationRequestReceived
	default:
		return RelationInconsistent
	}
}

// ClassifyRelation returns the relationship of a towards b using both records.
func ClassifyRelation(a, b UserProfile) RelationState {
	return factsOf(a, b).state()
}

// ReconcileTarget picks the consistent state two records should converge to.
//
//   - friends on both records wins;
//   - pending evidence in both directions means both parties asked, so the
//     pair becomes friends;
//   - pending evidence in one direction completes that request;
//   - anything else, including friendship recorded on one side only, resets
//     to none.
func ReconcileTarget(a, b UserProfile) RelationState {
	f := factsOf(a, b)
	outgoing := f.aSent || f.bReceived
	incoming := f.aReceived || f.bSentToA

	switch {
	case f.aFriend && f.bFriend:
		return RelationFriends
	case outgoing && incoming:
		return RelationFriends
	case outgoing:
		return RelationRequestSent
	case incoming:
		return RelationRequestReceived
	default:
		return RelationNone
	}
}

// Membership is the desired presence of one id in one set of one record.
type Membership struct {
	UserID  string
	Field   string
	Value   string
	Present bool
}

// MembershipsFor lists the six memberships that describe state between a and b.
func MembershipsFor(aID, bID string, state RelationState) []Membership {
	friends := state == RelationFriends
	sent := state == RelationRequestSent
	received := state == RelationRequestReceived
	return []Membership{
		{UserID: aID, Field: FieldFriends, Value: bID, Present: friends},
		{UserID: bID, Field: FieldFriends, Value: aID, Present: friends},
		{UserID: aID, Field: FieldSentFriendRequests, Value: bID, Present: sent},
		{UserID: bID, Field: FieldReceivedFriendRequests, Value: aID, Present: sent},
		{UserID: aID, Field: FieldReceivedFriendRequests, Value: bID, Present: received},
		{UserID: bID, Field: FieldSentFriendRequests, Value: aID, Present: received},
	}
}

// Holds reports whether the membership currently matches the given records.
func (m Membership) Holds(a, b UserProfile) bool {
	rec := a
	if m.UserID == b.ID {
		rec = b
	}
	var has bool
	switch m.Field {
	case FieldFriends:
		has = rec.HasFriend(m.Value)
	case FieldSentFriendRequests:
		has = rec.HasSentTo(m.Value)
	case FieldReceivedFriendRequests:
		has = rec.HasReceivedFrom(m.Value)
	}
	return has == m.Present
}
