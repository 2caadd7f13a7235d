package actions

import (
	// Go Internal Packages
	"context"
	"encoding/json"
	"fmt"
	"sort"

	// Local Packages
	errs "anchor-observer/errors"
	models "anchor-observer/models"
)

type route func(ctx context.Context, s *Service, params json.RawMessage) (*models.TransactionResponse, error)

func bind[R request](handler func(*Service, context.Context, R) (*models.TransactionResponse, error)) route {
	return func(ctx context.Context, s *Service, params json.RawMessage) (*models.TransactionResponse, error) {
		var req R
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, errs.InvalidBodyErr(err)
		}
		return handler(s, ctx, req)
	}
}

// Router maps JSON-RPC method names onto the service's actions.
type Router struct {
	service *Service
	routes  map[models.Action]route
}

func NewRouter(service *Service) *Router {
	return &Router{
		service: service,
		routes: map[models.Action]route{
			models.ActionRequestOnchainFunds:            bind((*Service).RequestOnchainFunds),
			models.ActionNotifyOnchainFundsReceived:     bind((*Service).NotifyOnchainFundsReceived),
			models.ActionNotifyOnchainFundsSent:         bind((*Service).NotifyOnchainFundsSent),
			models.ActionDoStellarPayment:               bind((*Service).DoStellarPayment),
			models.ActionDoStellarRefund:                bind((*Service).DoStellarRefund),
			models.ActionRequestTrust:                   bind((*Service).RequestTrust),
			models.ActionNotifyTrustSet:                 bind((*Service).NotifyTrustSet),
			models.ActionNotifyRefundPending:            bind((*Service).NotifyRefundPending),
			models.ActionNotifyRefundSent:               bind((*Service).NotifyRefundSent),
			models.ActionNotifyCustomerInfoUpdated:      bind((*Service).NotifyCustomerInfoUpdated),
			models.ActionRequestCustomerInfoUpdate:      bind((*Service).RequestCustomerInfoUpdate),
			models.ActionNotifyOffchainFundsPending:     bind((*Service).NotifyOffchainFundsPending),
			models.ActionRequestOffchainFunds:           bind((*Service).RequestOffchainFunds),
			models.ActionNotifyOffchainFundsReceived:    bind((*Service).NotifyOffchainFundsReceived),
			models.ActionNotifyOffchainFundsSent:        bind((*Service).NotifyOffchainFundsSent),
			models.ActionNotifyOffchainFundsAvailable:   bind((*Service).NotifyOffchainFundsAvailable),
			models.ActionNotifyInteractiveFlowCompleted: bind((*Service).NotifyInteractiveFlowCompleted),
			models.ActionNotifyAmountsUpdated:           bind((*Service).NotifyAmountsUpdated),
			models.ActionNotifyTransactionError:         bind((*Service).NotifyTransactionError),
			models.ActionNotifyTransactionExpired:       bind((*Service).NotifyTransactionExpired),
			models.ActionNotifyTransactionRecovery:      bind((*Service).NotifyTransactionRecovery),
		},
	}
}

// Dispatch decodes params for method and runs the action.
func (r *Router) Dispatch(ctx context.Context, method string, params json.RawMessage) (*models.TransactionResponse, error) {
	handler, ok := r.routes[models.Action(method)]
	if !ok {
		return nil, errs.E(errs.NotFound, fmt.Sprintf("method %q not found", method), nil)
	}
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	return handler(ctx, r.service, params)
}

// Methods lists the routed method names in order.
func (r *Router) Methods() []string {
	methods := make([]string, 0, len(r.routes))
	for action := range r.routes {
		methods = append(methods, string(action))
	}
	sort.Strings(methods)
	return methods
}
