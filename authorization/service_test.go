package authorization

import (
	"context"
	"fmt"
	"strings"
	"testing"

	jwt "github.com/appleboy/gin-jwt/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"aurora_back/database"
)

// recordingProvisioner satisfies AccountProvisioner and records the calls
// the service makes on its transaction.
type recordingProvisioner struct {
	provisioned []string
	deleted     []string
	failNext    bool
}

func (p *recordingProvisioner) ProvisionPersonalAccountTx(tx *gorm.DB, userID, email string) error {
	if p.failNext {
		p.failNext = false
		return fmt.Errorf("provision boom")
	}
	p.provisioned = append(p.provisioned, userID)
	return nil
}

func (p *recordingProvisioner) DeleteUserCascadeTx(tx *gorm.DB, userID string) error {
	p.deleted = append(p.deleted, userID)
	return nil
}

func newTestService(t *testing.T) (*AuthService, *recordingProvisioner) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := database.Open("sqlite", dsn)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&User{}))

	provisioner := &recordingProvisioner{}
	return &AuthService{db: db, users: &UserStore{db: db}, accounts: provisioner}, provisioner
}

func TestRegisterAndAuthenticate(t *testing.T) {
	service, provisioner := newTestService(t)
	ctx := context.Background()

	user, err := service.Register(ctx, "  Jane@Example.COM ", "hunter22", "")
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", user.Email)
	assert.Equal(t, "jane", user.Username)
	assert.NotEqual(t, "hunter22", user.PasswordHash)
	require.Len(t, provisioner.provisioned, 1)
	assert.Equal(t, user.ID, provisioner.provisioned[0])

	authenticated, err := service.Authenticate(ctx, "jane@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, user.ID, authenticated.ID)

	reloaded, err := service.users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.NotNil(t, reloaded.LastLoginAt)
}

func TestRegisterValidation(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	_, err := service.Register(ctx, "", "hunter22", "")
	assert.ErrorIs(t, err, jwt.ErrMissingLoginValues)

	_, err = service.Register(ctx, "jane@example.com", "short", "")
	assert.ErrorIs(t, err, ErrWeakPassword)

	_, err = service.Register(ctx, "jane@example.com", "hunter22", "")
	require.NoError(t, err)
	_, err = service.Register(ctx, "JANE@example.com", "different", "")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegisterRollsBackOnProvisionFailure(t *testing.T) {
	service, provisioner := newTestService(t)
	ctx := context.Background()

	provisioner.failNext = true
	_, err := service.Register(ctx, "jane@example.com", "hunter22", "")
	require.Error(t, err)

	// The user row must not survive the failed bootstrap.
	_, err = service.users.FindByEmail(ctx, "jane@example.com")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestAuthenticateRejections(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	user, err := service.Register(ctx, "jane@example.com", "hunter22", "Jane")
	require.NoError(t, err)

	_, err = service.Authenticate(ctx, "jane@example.com", "wrong")
	assert.ErrorIs(t, err, jwt.ErrFailedAuthentication)

	_, err = service.Authenticate(ctx, "nobody@example.com", "hunter22")
	assert.ErrorIs(t, err, jwt.ErrFailedAuthentication)

	_, err = service.Authenticate(ctx, "", "")
	assert.ErrorIs(t, err, jwt.ErrMissingLoginValues)

	require.NoError(t, service.users.SetActive(ctx, user.ID, false))
	_, err = service.Authenticate(ctx, "jane@example.com", "hunter22")
	assert.ErrorIs(t, err, jwt.ErrFailedAuthentication)
}

func TestDeleteUserCascades(t *testing.T) {
	service, provisioner := newTestService(t)
	ctx := context.Background()

	user, err := service.Register(ctx, "jane@example.com", "hunter22", "")
	require.NoError(t, err)

	require.NoError(t, service.DeleteUser(ctx, user.ID))
	require.Len(t, provisioner.deleted, 1)
	assert.Equal(t, user.ID, provisioner.deleted[0])

	_, err = service.users.FindByID(ctx, user.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	assert.ErrorIs(t, service.DeleteUser(ctx, user.ID), gorm.ErrRecordNotFound)
}

func TestCaptchaStoreVerify(t *testing.T) {
	// A nil store accepts everything: captcha disabled.
	var disabled *CaptchaStore
	assert.True(t, disabled.Verify("any", "thing"))

	store := newCaptchaStore(0)
	challenge := store.Issue()
	require.NotEmpty(t, challenge.ID)
	assert.True(t, strings.HasPrefix(challenge.ImageBase64, "data:image/"))

	assert.False(t, store.Verify(challenge.ID, "000000"))
	assert.False(t, store.Verify("", ""))
}
