package domain

import "time"

// Space 附件所属空间
type Space struct {
	Key     string `json:"key" gorm:"column:space_key;primaryKey;type:varchar(255)"` // 空间唯一标识
	Name    string `json:"name" gorm:"type:varchar(255)"`                            // 显示名称
	URLPath string `json:"urlPath" gorm:"type:varchar(500)"`                         // 相对链接，如 /spaces/DOC
}

// Attachment 附件的一个版本
//
// 同一附件的所有版本共享 LineageID，Version 单调递增，
// 版本号最大的一行是当前版本，其余都是历史版本。
type Attachment struct {
	ID          string     `json:"id" gorm:"primaryKey;type:varchar(36)"`                                              // 版本唯一标识
	LineageID   string     `json:"lineageId" gorm:"type:varchar(36);index:idx_attachment_lineage,priority:1;not null"` // 附件标识（跨版本）
	SpaceKey    string     `json:"spaceKey" gorm:"type:varchar(255);index;not null"`                                   // 所属空间
	Title       string     `json:"title" gorm:"type:varchar(255)"`                                                     // 文件名
	Version     int        `json:"version" gorm:"index:idx_attachment_lineage,priority:2;not null"`                    // 版本号，从 1 开始
	Size        int64      `json:"size"`                                                                               // 大小（字节）
	ModifiedAt  *time.Time `json:"modifiedAt,omitempty"`                                                               // 最后修改时间，可能为空
	StoragePath string     `json:"storagePath,omitempty" gorm:"type:varchar(500)"`                                     // 文件存储路径（相对路径）
	Space       *Space     `json:"space,omitempty" gorm:"foreignKey:SpaceKey;references:Key"`                          // 所属空间（加载时填充）
}

// IsFirstVersion 是否为首个版本（没有历史版本）
func (a *Attachment) IsFirstVersion() bool {
	return a.Version <= 1
}

// SpaceName 返回空间显示名称，未加载空间时回退到空间 key
func (a *Attachment) SpaceName() string {
	if a.Space != nil && a.Space.Name != "" {
		return a.Space.Name
	}
	return a.SpaceKey
}

// SpaceURLPath 返回空间相对链接
func (a *Attachment) SpaceURLPath() string {
	if a.Space != nil && a.Space.URLPath != "" {
		return a.Space.URLPath
	}
	return "/spaces/" + a.SpaceKey
}

// AttachmentsURLPath 返回附件版本列表的相对链接
func (a *Attachment) AttachmentsURLPath() string {
	return a.SpaceURLPath() + "/attachments/" + a.LineageID
}
