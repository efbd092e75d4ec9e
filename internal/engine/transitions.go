package engine

import (
	"fmt"

	"factoryline/internal/domain"
)

// controlTransitions is shared by the production-control and
// assembly-control families.
var controlTransitions = map[string][]string{
	domain.StatusPending:    {domain.StatusAssigned, domain.StatusAbandoned},
	domain.StatusAssigned:   {domain.StatusInProgress, domain.StatusAbandoned},
	domain.StatusInProgress: {domain.StatusHalted, domain.StatusCompleted},
	domain.StatusHalted:     {domain.StatusInProgress, domain.StatusAbandoned},
}

// transitions is the legal status graph per order family. Anything not in
// here is an illegal transition, full stop.
var transitions = map[string]map[string][]string{
	domain.OrderCustomer: {
		domain.StatusPending:    {domain.StatusConfirmed, domain.StatusCancelled},
		domain.StatusConfirmed:  {domain.StatusProcessing, domain.StatusCompleted, domain.StatusCancelled},
		domain.StatusProcessing: {domain.StatusCompleted},
	},
	domain.OrderWarehouse: {
		domain.StatusPending:            {domain.StatusConfirmed},
		domain.StatusConfirmed:          {domain.StatusFulfilled, domain.StatusAwaitingProduction},
		domain.StatusAwaitingProduction: {domain.StatusModulesReady},
		domain.StatusModulesReady:       {domain.StatusFulfilled},
	},
	domain.OrderProduction: {
		domain.StatusCreated:      {domain.StatusConfirmed, domain.StatusCancelled},
		domain.StatusConfirmed:    {domain.StatusScheduled, domain.StatusCancelled},
		domain.StatusScheduled:    {domain.StatusDispatched, domain.StatusCancelled},
		domain.StatusDispatched:   {domain.StatusInProduction, domain.StatusCancelled},
		domain.StatusInProduction: {domain.StatusCompleted, domain.StatusCancelled},
	},
	domain.OrderProductionControl: controlTransitions,
	domain.OrderAssemblyControl:   controlTransitions,
	domain.OrderWorkstation: {
		domain.StatusPending:         {domain.StatusWaitingForParts, domain.StatusInProgress},
		domain.StatusWaitingForParts: {domain.StatusInProgress},
		domain.StatusInProgress:      {domain.StatusHalted, domain.StatusCompleted},
		domain.StatusHalted:          {domain.StatusInProgress},
	},
	domain.OrderFinalAssembly: {
		domain.StatusPending:    {domain.StatusConfirmed},
		domain.StatusConfirmed:  {domain.StatusInProgress},
		domain.StatusInProgress: {domain.StatusCompleted},
		domain.StatusCompleted:  {domain.StatusSubmitted},
	},
	domain.OrderSupply: {
		domain.StatusPending:    {domain.StatusRejected, domain.StatusInProgress},
		domain.StatusInProgress: {domain.StatusFulfilled},
	},
}

func ensureTransition(orderType, from, to string) error {
	table, ok := transitions[orderType]
	if !ok {
		return fmt.Errorf("%w: unknown order type %s", ErrIllegalTransition, orderType)
	}
	for _, allowed := range table[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s order %s -> %s", ErrIllegalTransition, orderType, from, to)
}

// initialStatus is the creation status per family.
func initialStatus(orderType string) string {
	if orderType == domain.OrderProduction {
		return domain.StatusCreated
	}
	return domain.StatusPending
}

// orderNumberPrefix keys the human-readable numbering per family.
func orderNumberPrefix(orderType string) string {
	switch orderType {
	case domain.OrderCustomer:
		return "CO"
	case domain.OrderWarehouse:
		return "WO"
	case domain.OrderProduction:
		return "PO"
	case domain.OrderProductionControl:
		return "PC"
	case domain.OrderAssemblyControl:
		return "AC"
	case domain.OrderWorkstation:
		return "WS"
	case domain.OrderFinalAssembly:
		return "FA"
	case domain.OrderSupply:
		return "SO"
	}
	return "OR"
}
