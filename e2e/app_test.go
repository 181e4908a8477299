package e2e

import (
	"fmt"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"testing"

	"task-tracker/internal/client"
	"task-tracker/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

var accountSeq atomic.Int64

// E2ETestSuite drives the running server through the API client.
type E2ETestSuite struct {
	suite.Suite
	client *client.Client
	email  string
}

// SetupTest runs before each test
func (suite *E2ETestSuite) SetupTest() {
	// A fresh account per test keeps task lists independent; the server
	// process and its database are shared across the suite.
	suite.email = fmt.Sprintf("user%d@e2e.test", accountSeq.Add(1))
	suite.client = client.New(appURL, "")

	_, err := suite.client.Register("E2E User", suite.email, "testpass123")
	require.NoError(suite.T(), err, "could not register account")

	_, err = suite.client.Login(suite.email, "testpass123")
	require.NoError(suite.T(), err, "could not log in")
}

func (suite *E2ETestSuite) TestProfile() {
	user, err := suite.client.Profile()
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), suite.email, user.Email)
	assert.Equal(suite.T(), "E2E User", user.Name)
}

func (suite *E2ETestSuite) TestTaskLifecycle() {
	task, err := suite.client.CreateTask("Buy milk", "")
	require.NoError(suite.T(), err)
	assert.False(suite.T(), task.Completed)

	_, stats, err := suite.client.FetchTasks()
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.Stats{Total: 1, Completed: 0, Pending: 1}, stats)

	toggled, err := suite.client.ToggleTask(task.ID)
	require.NoError(suite.T(), err)
	assert.True(suite.T(), toggled.Completed)

	_, stats, err = suite.client.FetchTasks()
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.Stats{Total: 1, Completed: 1, Pending: 0}, stats)

	require.NoError(suite.T(), suite.client.DeleteTask(task.ID))

	_, stats, err = suite.client.FetchTasks()
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.Stats{}, stats)
}

func (suite *E2ETestSuite) TestSessionResumesFromTokenFile() {
	tokenPath := filepath.Join(suite.T().TempDir(), "token")

	first := client.New(appURL, tokenPath)
	_, err := first.Login(suite.email, "testpass123")
	require.NoError(suite.T(), err)

	_, err = first.CreateTask("persisted", "")
	require.NoError(suite.T(), err)

	// A second process (new client) picks the session up from disk.
	second := client.New(appURL, tokenPath)
	require.True(suite.T(), second.IsAuthenticated())

	tasks, _, err := second.FetchTasks()
	require.NoError(suite.T(), err)
	require.Len(suite.T(), tasks, 1)
	assert.Equal(suite.T(), "persisted", tasks[0].Title)
}

func (suite *E2ETestSuite) TestCrossAccountIsolation() {
	task, err := suite.client.CreateTask("mine", "")
	require.NoError(suite.T(), err)

	other := client.New(appURL, "")
	otherEmail := fmt.Sprintf("user%d@e2e.test", accountSeq.Add(1))
	_, err = other.Register("Other", otherEmail, "testpass123")
	require.NoError(suite.T(), err)
	_, err = other.Login(otherEmail, "testpass123")
	require.NoError(suite.T(), err)

	_, err = other.GetTask(task.ID)
	var apiErr *client.APIError
	require.ErrorAs(suite.T(), err, &apiErr)
	assert.Equal(suite.T(), http.StatusNotFound, apiErr.StatusCode)

	tasks, _, err := other.FetchTasks()
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), tasks)
}

func TestE2ESuite(t *testing.T) {
	suite.Run(t, new(E2ETestSuite))
}
