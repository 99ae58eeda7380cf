package records

// recordColumns is the column order shared by the SQL stores' scan functions.
const recordColumns = `id, name, organization, event_name, pic, contact_first, contact_second,
	event_instagram, organizer_instagram, pricing_scheme, capacity, ticket_price, active,
	meeting_at, meeting_event_id, meeting_notes,
	ticket_sale_at, ticket_sale_event_id, ticket_sale_notes,
	event_day_at, event_day_event_id, event_day_notes, event_day_venue,
	created_at, updated_at`
