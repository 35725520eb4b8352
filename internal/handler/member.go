package handler

import (
	"net/http"

	"github.com/pkordes/tripsync/backend/internal/domain"
	"github.com/pkordes/tripsync/backend/internal/wire"
)

// ListMembers handles GET /trips/{tripId}/members.
func (s *Server) ListMembers(w http.ResponseWriter, r *http.Request) {
	tripID, err := pathUUID(r, "tripId")
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}

	members, err := s.members.List(r.Context(), caller(r), tripID)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	data := make([]wire.Member, len(members))
	for i, m := range members {
		data[i] = wire.MemberFromDomain(m)
	}
	writeJSON(w, http.StatusOK, wire.MemberListResponse{Data: data})
}

// PutMember handles PUT /trips/{tripId}/members/{userId}.
func (s *Server) PutMember(w http.ResponseWriter, r *http.Request) {
	tripID, err := pathUUID(r, "tripId")
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	userID, err := pathUUID(r, "userId")
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	var body wire.PutMemberRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err, nil)
		return
	}

	m, err := s.members.Upsert(r.Context(), caller(r), domain.TripMembership{TripID: tripID, UserID: userID, Role: body.Role})
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, wire.MemberFromDomain(m))
}

// DeleteMember handles DELETE /trips/{tripId}/members/{userId}.
func (s *Server) DeleteMember(w http.ResponseWriter, r *http.Request) {
	tripID, err := pathUUID(r, "tripId")
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	userID, err := pathUUID(r, "userId")
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}

	if err := s.members.Remove(r.Context(), caller(r), tripID, userID); err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
