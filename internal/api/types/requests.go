package types

type TreeCreateRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

type NodeCreateRequest struct {
	Title   string `json:"title" validate:"required,max=500"`
	Content string `json:"content"`
}

type NodeUpdateRequest struct {
	ExpectedVersion int    `json:"expected_version" validate:"required,gte=1"`
	Title           string `json:"title" validate:"required,max=500"`
	Content         string `json:"content"`
}

type RelationRequest struct {
	ParentID string `json:"parent_id" validate:"required,uuid"`
	ChildID  string `json:"child_id" validate:"required,uuid"`
}

type RelationMoveRequest struct {
	ChildID      string `json:"child_id" validate:"required,uuid"`
	FromParentID string `json:"from_parent_id" validate:"required,uuid"`
	ToParentID   string `json:"to_parent_id" validate:"required,uuid"`
}
