package api

// Service accessors group Client methods by resource. Services hold a
// Requester so tests can substitute fakes for the HTTP layer.

func (c *Client) Conversations() *ConversationsService {
	return NewConversationsService(c)
}

func (c *Client) Workspace() *WorkspaceService {
	return NewWorkspaceService(c)
}
