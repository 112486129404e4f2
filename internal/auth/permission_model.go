package auth

// GetPermissionModel 获取 OpenFGA 权限模型定义
// 订单归属购买者，作品归属创作者，viewer 可由归属人授予(例如助理账号)
func GetPermissionModel() string {
	return `model
  schema 1.1

type user

type order
  relations
    define owner: [user]
    define viewer: [user] or owner

type review_item
  relations
    define owner: [user]
    define viewer: [user] or owner`
}
