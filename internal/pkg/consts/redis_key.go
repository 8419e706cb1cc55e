package consts

const (
	NotifyPrefKey         = "notify:pref:"          // notify:pref:{user_id}:{type_id}
	NotifyTypeChannelsKey = "notify:type:channels:" // notify:type:channels:{type_id}
	UserProfileKey        = "user:profile:"
	TokenBlacklistKey     = "auth:blacklist:"
	IMOfflineDigestKey    = "im:offline:digest:" // im:offline:digest:{user_id}:{conversation_id}
)
