package pushsync

import (
	"fmt"

	pushcommand "github.com/goliatone/go-pushsync/command"
)

// Commands bundles one ready-to-register command wrapper per lifecycle
// operation, all bound to the same service.
type Commands struct {
	CompleteAuthorization *pushcommand.CompleteAuthorizationCommand
	Subscribe             *pushcommand.SubscribeCommand
	RenewSubscription     *pushcommand.RenewSubscriptionCommand
	CancelSubscription    *pushcommand.CancelSubscriptionCommand
	RenewOwner            *pushcommand.RenewOwnerCommand
	CleanupOwner          *pushcommand.CleanupOwnerCommand
}

// Facade pairs a lifecycle service with its command wrappers so hosts wire one
// value into their command bus instead of six constructors.
type Facade struct {
	service  pushcommand.LifecycleService
	commands Commands
}

func NewFacade(service pushcommand.LifecycleService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("pushsync: lifecycle service is required")
	}
	return &Facade{
		service: service,
		commands: Commands{
			CompleteAuthorization: pushcommand.NewCompleteAuthorizationCommand(service),
			Subscribe:             pushcommand.NewSubscribeCommand(service),
			RenewSubscription:     pushcommand.NewRenewSubscriptionCommand(service),
			CancelSubscription:    pushcommand.NewCancelSubscriptionCommand(service),
			RenewOwner:            pushcommand.NewRenewOwnerCommand(service),
			CleanupOwner:          pushcommand.NewCleanupOwnerCommand(service),
		},
	}, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Service() pushcommand.LifecycleService {
	if f == nil {
		return nil
	}
	return f.service
}
