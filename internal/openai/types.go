package openai

// Request shapes. The Assistants API takes message text as a plain
// string on create but returns it as a {value, annotations} object, so
// request and response parts are separate types.

type messageRequest struct {
	Role        string              `json:"role"`
	Content     []requestPart       `json:"content"`
	Attachments []attachmentRequest `json:"attachments,omitempty"`
}

type requestPart struct {
	Type      string        `json:"type"`
	Text      string        `json:"text,omitempty"`
	ImageFile *imageFileRef `json:"image_file,omitempty"`
}

type imageFileRef struct {
	FileID string `json:"file_id"`
}

type attachmentRequest struct {
	FileID string    `json:"file_id"`
	Tools  []toolTag `json:"tools"`
}

type toolTag struct {
	Type string `json:"type"`
}

type runRequest struct {
	AssistantID   string         `json:"assistant_id"`
	ToolResources *toolResources `json:"tool_resources,omitempty"`
}

type toolResources struct {
	CodeInterpreter *codeInterpreterResources `json:"code_interpreter,omitempty"`
}

type codeInterpreterResources struct {
	FileIDs []string `json:"file_ids"`
}

// Response shapes.

type fileResponse struct {
	ID string `json:"id"`
}

type threadResponse struct {
	ID string `json:"id"`
}

type runResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type messageListResponse struct {
	Data []threadMessage `json:"data"`
}

type threadMessage struct {
	Role    string        `json:"role"`
	Content []messagePart `json:"content"`
}

type messagePart struct {
	Type string     `json:"type"`
	Text *textValue `json:"text,omitempty"`
}

type textValue struct {
	Value string `json:"value"`
}
