package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-pushsync/core"
	"github.com/uptrace/bun"
)

// RepositoryFactory wires the SQL-backed stores off one bun handle. The
// cipher is mandatory: there is no plaintext credential path.
type RepositoryFactory struct {
	db     *bun.DB
	cipher core.SecretCipher

	credentialStore   *CredentialStore
	subscriptionStore *SubscriptionStore
}

func NewRepositoryFactory(cipher core.SecretCipher) *RepositoryFactory {
	return &RepositoryFactory{cipher: cipher}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, cipher core.SecretCipher) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(cipher)
	if err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, cipher core.SecretCipher) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(cipher)
	if err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.cipher == nil {
		return fmt.Errorf("sqlstore: secret cipher is required")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.credentialStore != nil && f.subscriptionStore != nil {
		return nil
	}
	return f.initStores()
}

func (f *RepositoryFactory) CredentialStore() core.CredentialStore {
	if f == nil {
		return nil
	}
	return f.credentialStore
}

func (f *RepositoryFactory) SubscriptionStore() core.SubscriptionStore {
	if f == nil {
		return nil
	}
	return f.subscriptionStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	credentialStore, err := NewCredentialStore(f.db, f.cipher)
	if err != nil {
		return err
	}
	f.credentialStore = credentialStore

	subscriptionStore, err := NewSubscriptionStore(f.db)
	if err != nil {
		return err
	}
	f.subscriptionStore = subscriptionStore
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
