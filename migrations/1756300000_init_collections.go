package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
	"github.com/pocketbase/pocketbase/tools/types"
)

// Creates the ticketing collections. Money fields are decimal strings;
// status fields are selects matching the Go enums. The unique indexes on
// tickets.code and transfers.claim_code_hash, and the partial unique index
// keeping one PENDING transfer per ticket, are the schema-level backstops
// for the conditional updates in the store layer.
func init() {
	m.Register(func(app core.App) error {
		events := core.NewBaseCollection("events")
		events.Fields.Add(
			&core.TextField{Name: "name", Required: true, Max: 200},
			&core.TextField{Name: "description", Max: 5000},
			&core.TextField{Name: "venue", Max: 200},
			&core.TextField{Name: "city", Max: 100},
			&core.DateField{Name: "start_time"},
			&core.DateField{Name: "end_time"},
			&core.TextField{Name: "organizer_id", Max: 64},
			&core.SelectField{Name: "status", Values: []string{"DRAFT", "PUBLISHED", "CANCELLED", "ENDED"}, MaxSelect: 1},
		)
		if err := app.Save(events); err != nil {
			return err
		}

		ticketTypes := core.NewBaseCollection("ticket_types")
		ticketTypes.Fields.Add(
			&core.TextField{Name: "event_id", Required: true, Max: 64},
			&core.TextField{Name: "name", Required: true, Max: 100},
			&core.TextField{Name: "price", Required: true, Max: 32},
			&core.NumberField{Name: "quantity", Required: true, OnlyInt: true},
			&core.NumberField{Name: "sold", OnlyInt: true},
			&core.NumberField{Name: "max_per_order", OnlyInt: true},
		)
		ticketTypes.Indexes = types.JSONArray[string]{
			"CREATE INDEX idx_ticket_types_event ON ticket_types (event_id)",
		}
		if err := app.Save(ticketTypes); err != nil {
			return err
		}

		orders := core.NewBaseCollection("orders")
		orders.Fields.Add(
			&core.TextField{Name: "buyer_id", Required: true, Max: 64},
			&core.TextField{Name: "event_id", Required: true, Max: 64},
			&core.SelectField{Name: "status", Values: []string{"PENDING", "PAID", "CANCELLED"}, MaxSelect: 1, Required: true},
			&core.TextField{Name: "subtotal", Max: 32},
			&core.TextField{Name: "fee", Max: 32},
			&core.TextField{Name: "total", Max: 32},
			&core.TextField{Name: "lines", Max: 10000},
			&core.DateField{Name: "created_at"},
			&core.DateField{Name: "paid_at"},
		)
		orders.Indexes = types.JSONArray[string]{
			"CREATE INDEX idx_orders_buyer ON orders (buyer_id)",
		}
		if err := app.Save(orders); err != nil {
			return err
		}

		tickets := core.NewBaseCollection("tickets")
		tickets.Fields.Add(
			&core.TextField{Name: "order_id", Required: true, Max: 64},
			&core.TextField{Name: "ticket_type_id", Required: true, Max: 64},
			&core.TextField{Name: "event_id", Required: true, Max: 64},
			&core.TextField{Name: "owner_id", Required: true, Max: 64},
			&core.TextField{Name: "code", Required: true, Max: 64},
			&core.TextField{Name: "price", Max: 32},
			&core.SelectField{Name: "status", Values: []string{"VALID", "USED", "CANCELLED", "EXPIRED"}, MaxSelect: 1, Required: true},
			&core.DateField{Name: "created_at"},
			&core.DateField{Name: "used_at"},
		)
		tickets.Indexes = types.JSONArray[string]{
			"CREATE UNIQUE INDEX idx_tickets_code ON tickets (code)",
			"CREATE INDEX idx_tickets_owner ON tickets (owner_id)",
			"CREATE INDEX idx_tickets_order ON tickets (order_id)",
		}
		if err := app.Save(tickets); err != nil {
			return err
		}

		transfers := core.NewBaseCollection("transfers")
		transfers.Fields.Add(
			&core.TextField{Name: "ticket_id", Required: true, Max: 64},
			&core.TextField{Name: "sender_id", Required: true, Max: 64},
			&core.TextField{Name: "recipient_contact", Required: true, Max: 200},
			&core.TextField{Name: "claim_code_hash", Required: true, Max: 128},
			&core.SelectField{Name: "status", Values: []string{"PENDING", "CLAIMED", "CANCELLED", "EXPIRED"}, MaxSelect: 1, Required: true},
			&core.TextField{Name: "claimed_by", Max: 64},
			&core.DateField{Name: "created_at"},
			&core.DateField{Name: "expires_at"},
		)
		transfers.Indexes = types.JSONArray[string]{
			"CREATE UNIQUE INDEX idx_transfers_claim_hash ON transfers (claim_code_hash)",
			"CREATE UNIQUE INDEX idx_transfers_one_pending ON transfers (ticket_id) WHERE status = 'PENDING'",
			"CREATE INDEX idx_transfers_sender ON transfers (sender_id)",
			"CREATE INDEX idx_transfers_recipient ON transfers (recipient_contact)",
		}
		return app.Save(transfers)
	}, func(app core.App) error {
		for _, name := range []string{"transfers", "tickets", "orders", "ticket_types", "events"} {
			collection, err := app.FindCollectionByNameOrId(name)
			if err != nil {
				continue
			}
			if err := app.Delete(collection); err != nil {
				return err
			}
		}
		return nil
	})
}
