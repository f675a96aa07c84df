package db

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.vocdoni.io/dvote/log"
)

// MemoryStorage keeps everything in process memory. It follows the same
// rules as MongoStorage, with a single mutex standing in for transactions.
// Data is lost on restart, so it is only meant for development and tests.
type MemoryStorage struct {
	mu       sync.RWMutex
	users    map[string]User
	balances map[string]Balance
	payments map[string]Payment
	payouts  map[string]Payout
	// verification codes by verificationID
	verifications map[string]UserVerification
}

// NewMemory returns an empty in-memory storage.
func NewMemory() *MemoryStorage {
	ms := &MemoryStorage{}
	ms.init()
	return ms
}

func (ms *MemoryStorage) init() {
	ms.users = map[string]User{}
	ms.balances = map[string]Balance{}
	ms.payments = map[string]Payment{}
	ms.payouts = map[string]Payout{}
	ms.verifications = map[string]UserVerification{}
}

// Close is a no-op.
func (*MemoryStorage) Close() {}

// Reset drops every stored document.
func (ms *MemoryStorage) Reset() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.init()
	return nil
}

// String dumps the storage as JSON, with the same format as MongoStorage.
func (ms *MemoryStorage) String() string {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	dump := Collection{}
	for _, u := range ms.users {
		dump.Users = append(dump.Users, u)
	}
	for _, b := range ms.balances {
		dump.Balances = append(dump.Balances, b)
	}
	for _, p := range ms.payments {
		dump.Payments = append(dump.Payments, p)
	}
	for _, p := range ms.payouts {
		dump.Payouts = append(dump.Payouts, p)
	}
	data, err := json.Marshal(&dump)
	if err != nil {
		log.Warn(err)
		return "{}"
	}
	return string(data)
}

// Import loads a JSON dump, replacing documents with the same ID.
func (ms *MemoryStorage) Import(jsonData []byte) error {
	var dump Collection
	if err := json.Unmarshal(jsonData, &dump); err != nil {
		return err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for _, u := range dump.Users {
		ms.users[u.ID] = u
	}
	for _, b := range dump.Balances {
		ms.balances[b.UserID] = b
	}
	for _, p := range dump.Payments {
		ms.payments[p.SessionID] = p
	}
	for _, p := range dump.Payouts {
		ms.payouts[p.ID] = p
	}
	return nil
}

// SetUser creates or updates a user, see MongoStorage.SetUser.
func (ms *MemoryStorage) SetUser(user *User) (string, error) {
	if user == nil || user.Email == "" {
		return "", ErrInvalidData
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for id, u := range ms.users {
		if u.Email == user.Email && id != user.ID {
			return "", ErrAlreadyExists
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
		if user.CreatedAt.IsZero() {
			user.CreatedAt = time.Now()
		}
		ms.users[user.ID] = *user
		return user.ID, nil
	}
	current, ok := ms.users[user.ID]
	if !ok {
		return "", ErrNotFound
	}
	if user.Password != "" {
		current.Password = user.Password
	}
	if user.FullName != "" {
		current.FullName = user.FullName
	}
	if user.StripeCustomerID != "" {
		current.StripeCustomerID = user.StripeCustomerID
	}
	current.Email = user.Email
	ms.users[user.ID] = current
	return user.ID, nil
}

// User returns the user with the given ID.
func (ms *MemoryStorage) User(id string) (*User, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	u, ok := ms.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

// UserByEmail returns the user with the given email.
func (ms *MemoryStorage) UserByEmail(email string) (*User, error) {
	return ms.findUser(func(u User) bool { return u.Email == email })
}

// UserBySubscriptionID returns the user owning the membership subscription.
func (ms *MemoryStorage) UserBySubscriptionID(subscriptionID string) (*User, error) {
	if subscriptionID == "" {
		return nil, ErrInvalidData
	}
	return ms.findUser(func(u User) bool { return u.StripeSubscriptionID == subscriptionID })
}

func (ms *MemoryStorage) findUser(match func(User) bool) (*User, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	for _, u := range ms.users {
		if match(u) {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

// SetStripeCustomerID links the user to its payment processor customer.
func (ms *MemoryStorage) SetStripeCustomerID(userID, customerID string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	u, ok := ms.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.StripeCustomerID = customerID
	ms.users[userID] = u
	return nil
}

// DelUser removes the user and its balance.
func (ms *MemoryStorage) DelUser(id string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, ok := ms.users[id]; !ok {
		return ErrNotFound
	}
	delete(ms.users, id)
	delete(ms.balances, id)
	delete(ms.verifications, verificationID(id, CodeTypeAccountVerification))
	delete(ms.verifications, verificationID(id, CodeTypePasswordReset))
	return nil
}

// Balance returns the coin balance of the user, zero when missing.
func (ms *MemoryStorage) Balance(userID string) (*Balance, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	b, ok := ms.balances[userID]
	if !ok {
		return &Balance{UserID: userID}, nil
	}
	return &b, nil
}

// incBalance must be called with the lock held.
func (ms *MemoryStorage) incBalance(userID string, delta int64) int64 {
	b := ms.balances[userID]
	b.UserID = userID
	b.VirtualMoney += delta
	b.UpdatedAt = time.Now()
	ms.balances[userID] = b
	return b.VirtualMoney
}

// IsProcessed reports whether the checkout session was already applied.
func (ms *MemoryStorage) IsProcessed(sessionID string) (bool, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	_, ok := ms.payments[sessionID]
	return ok, nil
}

// Payments returns the applied sessions of the user, newest first.
func (ms *MemoryStorage) Payments(userID string) ([]Payment, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	payments := []Payment{}
	for _, p := range ms.payments {
		if p.UserID == userID {
			payments = append(payments, p)
		}
	}
	sort.Slice(payments, func(i, j int) bool {
		return payments[i].ProcessedAt.After(payments[j].ProcessedAt)
	})
	return payments, nil
}

// recordPayment must be called with the lock held.
func (ms *MemoryStorage) recordPayment(payment *Payment) error {
	if _, ok := ms.payments[payment.SessionID]; ok {
		return ErrAlreadyProcessed
	}
	if payment.ProcessedAt.IsZero() {
		payment.ProcessedAt = time.Now()
	}
	ms.payments[payment.SessionID] = *payment
	return nil
}

// CreditCoins records the session and credits its coins atomically.
func (ms *MemoryStorage) CreditCoins(payment *Payment) (int64, error) {
	if payment == nil || payment.SessionID == "" || payment.UserID == "" || payment.Coins <= 0 {
		return 0, ErrInvalidData
	}
	payment.Type = PaymentCoins
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if err := ms.recordPayment(payment); err != nil {
		return 0, err
	}
	return ms.incBalance(payment.UserID, payment.Coins), nil
}

// ActivatePremium records the session and marks the user premium atomically.
func (ms *MemoryStorage) ActivatePremium(payment *Payment) error {
	if payment == nil || payment.SessionID == "" || payment.UserID == "" {
		return ErrInvalidData
	}
	payment.Type = PaymentMembership
	ms.mu.Lock()
	defer ms.mu.Unlock()
	u, ok := ms.users[payment.UserID]
	if !ok {
		return ErrNotFound
	}
	if err := ms.recordPayment(payment); err != nil {
		return err
	}
	u.Premium = true
	u.PremiumSince = payment.ProcessedAt
	if payment.SubscriptionID != "" {
		u.StripeSubscriptionID = payment.SubscriptionID
	}
	ms.users[u.ID] = u
	return nil
}

// DeactivatePremium clears the membership of the user.
func (ms *MemoryStorage) DeactivatePremium(userID string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	u, ok := ms.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.Premium = false
	u.StripeSubscriptionID = ""
	ms.users[userID] = u
	return nil
}

// AddCoins credits coins without a checkout session.
func (ms *MemoryStorage) AddCoins(userID string, coins int64) (int64, error) {
	if coins <= 0 {
		return 0, ErrInvalidData
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, ok := ms.users[userID]; !ok {
		return 0, ErrNotFound
	}
	return ms.incBalance(userID, coins), nil
}

// CreatePayout deducts the coins and stores the request atomically.
func (ms *MemoryStorage) CreatePayout(payout *Payout) (int64, error) {
	if payout == nil || payout.UserID == "" || payout.Coins <= 0 {
		return 0, ErrInvalidData
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.balances[payout.UserID].VirtualMoney < payout.Coins {
		return 0, ErrInsufficientBalance
	}
	if payout.ID == "" {
		payout.ID = uuid.NewString()
	}
	now := time.Now()
	payout.Status = PayoutPending
	payout.CreatedAt = now
	payout.UpdatedAt = now
	ms.payouts[payout.ID] = *payout
	return ms.incBalance(payout.UserID, -payout.Coins), nil
}

// Payout returns the payout request with the given ID.
func (ms *MemoryStorage) Payout(id string) (*Payout, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	p, ok := ms.payouts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

// Payouts returns the payout requests of the user, newest first.
func (ms *MemoryStorage) Payouts(userID string) ([]Payout, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	payouts := []Payout{}
	for _, p := range ms.payouts {
		if p.UserID == userID {
			payouts = append(payouts, p)
		}
	}
	sort.Slice(payouts, func(i, j int) bool {
		return payouts[i].CreatedAt.After(payouts[j].CreatedAt)
	})
	return payouts, nil
}

// SetPayoutStatus settles a pending payout, refunding rejected ones.
func (ms *MemoryStorage) SetPayoutStatus(id string, status PayoutStatus) error {
	if status != PayoutPaid && status != PayoutRejected {
		return ErrInvalidTransition
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	p, ok := ms.payouts[id]
	if !ok {
		return ErrNotFound
	}
	if p.Status != PayoutPending {
		return ErrInvalidTransition
	}
	p.Status = status
	p.UpdatedAt = time.Now()
	ms.payouts[id] = p
	if status == PayoutRejected {
		ms.incBalance(p.UserID, p.Coins)
	}
	return nil
}

// SetVerificationCode stores the hashed code of the given type for the user.
func (ms *MemoryStorage) SetVerificationCode(userID, code string, t CodeType, expiration time.Time) error {
	if userID == "" || code == "" {
		return ErrInvalidData
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, ok := ms.users[userID]; !ok {
		return ErrNotFound
	}
	id := verificationID(userID, t)
	ms.verifications[id] = UserVerification{
		ID:         id,
		UserID:     userID,
		Code:       code,
		Type:       t,
		Expiration: expiration,
	}
	return nil
}

// UserByVerificationCode returns the user owning the hashed code.
func (ms *MemoryStorage) UserByVerificationCode(code string, t CodeType) (*User, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	for _, v := range ms.verifications {
		if v.Code != code || v.Type != t {
			continue
		}
		if time.Now().After(v.Expiration) {
			return nil, ErrVerificationExpired
		}
		u, ok := ms.users[v.UserID]
		if !ok {
			return nil, ErrNotFound
		}
		return &u, nil
	}
	return nil, ErrNotFound
}

// VerifyUserAccount marks the user as verified and removes its code.
func (ms *MemoryStorage) VerifyUserAccount(userID string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	u, ok := ms.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.Verified = true
	ms.users[userID] = u
	delete(ms.verifications, verificationID(userID, CodeTypeAccountVerification))
	return nil
}

// ResetUserPassword replaces the password hash and removes the reset code.
func (ms *MemoryStorage) ResetUserPassword(userID, password string) error {
	if password == "" {
		return ErrInvalidData
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	u, ok := ms.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.Password = password
	u.Verified = true
	ms.users[userID] = u
	delete(ms.verifications, verificationID(userID, CodeTypePasswordReset))
	return nil
}
