package bot

import (
	"fmt"
	"strconv"
	"strings"

	"doc-courier/internal/model"
	"doc-courier/internal/orders"
)

// draft accumulates the answers collected so far.
type draft struct {
	Description   string
	Pickup        string
	Delivery      string
	Service       model.ServiceType
	DocumentCount int
}

// state is the sealed set of conversation steps. Each step owns the draft
// built so far; transitions are pure, the loop only stores the result.
type state interface{ isState() }

type (
	awaitDescription struct{}
	awaitPickup      struct{ d draft }
	awaitDelivery    struct{ d draft }
	awaitService     struct{ d draft }
	awaitDocCount    struct{ d draft }
	awaitConfirm     struct{ d draft }
)

func (awaitDescription) isState() {}
func (awaitPickup) isState()      {}
func (awaitDelivery) isState()    {}
func (awaitService) isState()     {}
func (awaitDocCount) isState()    {}
func (awaitConfirm) isState()     {}

const promptDescription = "What are we delivering? Describe the shipment."

// advance feeds one line of input to the current step. It returns the next
// state (nil when the conversation ends), the reply to send, and the
// assembled request once the customer confirms.
func advance(s state, input string) (state, string, *orders.CreateRequest) {
	input = strings.TrimSpace(input)

	switch st := s.(type) {
	case awaitDescription:
		if input == "" {
			return st, "Please describe the shipment.", nil
		}
		return awaitPickup{d: draft{Description: input}}, "Where do we pick it up?", nil

	case awaitPickup:
		if input == "" {
			return st, "Please give the pickup address.", nil
		}
		st.d.Pickup = input
		return awaitDelivery{d: st.d}, "Where does it go?", nil

	case awaitDelivery:
		if input == "" {
			return st, "Please give the delivery address.", nil
		}
		st.d.Delivery = input
		return awaitService{d: st.d},
			"Which service? (standard / express / same_day / document)", nil

	case awaitService:
		service := model.ServiceType(strings.ToLower(input))
		if !service.Valid() {
			return st, "Unknown service. Reply with standard, express, same_day or document.", nil
		}
		st.d.Service = service
		if service == model.ServiceDocument {
			return awaitDocCount{d: st.d}, "How many documents? (minimum 3)", nil
		}
		return awaitConfirm{d: st.d}, confirmPrompt(st.d), nil

	case awaitDocCount:
		n, err := strconv.Atoi(input)
		if err != nil || n <= 0 {
			return st, "Please reply with a number of documents.", nil
		}
		st.d.DocumentCount = n
		return awaitConfirm{d: st.d}, confirmPrompt(st.d), nil

	case awaitConfirm:
		switch strings.ToLower(input) {
		case "yes", "y":
			req := &orders.CreateRequest{
				Description:     st.d.Description,
				PickupAddress:   st.d.Pickup,
				DeliveryAddress: st.d.Delivery,
				Service:         st.d.Service,
				DocumentCount:   st.d.DocumentCount,
			}
			return nil, "", req
		case "no", "n":
			return nil, "Order discarded.", nil
		default:
			return st, "Reply yes to place the order or no to discard it.", nil
		}
	}

	return awaitDescription{}, promptDescription, nil
}

func confirmPrompt(d draft) string {
	summary := fmt.Sprintf("%s\nPickup: %s\nDelivery: %s\nService: %s",
		d.Description, d.Pickup, d.Delivery, d.Service)
	if d.DocumentCount > 0 {
		summary += fmt.Sprintf("\nDocuments: %d", d.DocumentCount)
	}
	return summary + "\n\nPlace this order? (yes/no)"
}
